package types

// Config is forge's merged configuration: defaults for the Continuation
// Engine and Synthesis Orchestrator, the allow-listed assistant CLI types,
// and per-CLI binary path overrides.
type Config struct {
	DefaultMaxIterations int                  `json:"defaultMaxIterations,omitempty"`
	DefaultQuietDelayMs  int                  `json:"defaultQuietDelayMs,omitempty"`
	DefaultSynthesisN    int                  `json:"defaultSynthesisN,omitempty"`
	AllowedCLITypes      []string             `json:"allowedCliTypes,omitempty"`
	CLIBinaries          map[string]string    `json:"cliBinaries,omitempty"`
	HTTP                 HTTPConfig           `json:"http,omitempty"`
}

// HTTPConfig configures the reference HTTP/SSE facade.
type HTTPConfig struct {
	Port       int  `json:"port,omitempty"`
	EnableCORS bool `json:"enableCors,omitempty"`
}
