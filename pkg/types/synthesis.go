package types

// SynthesisStatus is the lifecycle state of a SynthesisJob.
type SynthesisStatus string

const (
	SynthesisRunning SynthesisStatus = "running"
	SynthesisDone    SynthesisStatus = "done"
)

// SynthesisJob tracks a best-of-N synthesis run: n independent one-shot
// runs of one assistant, combined by a final run bound to sessionID.
type SynthesisJob struct {
	JobID       string          `json:"jobId"`
	WorkspaceID string          `json:"workspaceId"`
	Goal        string          `json:"goal"`
	N           int             `json:"n"`
	Completed   int             `json:"completed"`
	Total       int             `json:"total"`
	Status      SynthesisStatus `json:"status"`
	SessionID   string          `json:"sessionId,omitempty"`
}
