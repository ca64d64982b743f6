package types

// SessionStatus is the lifecycle state of an AgentSession row.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// AgentSession is the durable record of a spawned PTY-backed assistant
// session. It is created when a PTY is spawned and closed out exactly once
// when the underlying process exits or is killed.
type AgentSession struct {
	ID              string        `json:"id"`
	WorkspaceID     string        `json:"workspaceId"`
	CLIType         string        `json:"cliType"`
	Goal            string        `json:"goal,omitempty"`
	Status          SessionStatus `json:"status"`
	IterationCount  int           `json:"iterationCount"`
	TokenInput      int           `json:"tokenInput"`
	TokenOutput     int           `json:"tokenOutput"`
	StartedAt       int64         `json:"startedAt"`
	EndedAt         *int64        `json:"endedAt,omitempty"`
}

// CLITypes is the fixed allow-list of assistant CLI identifiers the
// supervisor knows how to spawn.
var CLITypes = []string{"claude", "gemini", "codex", "copilot", "qwen", "llm"}

// IsValidCLIType reports whether cli is one of the allow-listed CLI types.
func IsValidCLIType(cli string) bool {
	for _, c := range CLITypes {
		if c == cli {
			return true
		}
	}
	return false
}
