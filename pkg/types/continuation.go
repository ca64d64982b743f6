package types

// ContinuationStatus is the lifecycle state of a continuation run.
type ContinuationStatus string

const (
	ContinuationRunning    ContinuationStatus = "running"
	ContinuationPaused     ContinuationStatus = "paused"
	ContinuationDone       ContinuationStatus = "done"
	ContinuationMaxReached ContinuationStatus = "max_reached"
	ContinuationCancelled  ContinuationStatus = "cancelled"
)

// ContinuationCheckpoint is the durable projection of a running
// ContinuationState, written on every iteration and deleted on any
// terminal status.
type ContinuationCheckpoint struct {
	PtyID            string             `json:"ptyId"`
	WorkspaceID      string             `json:"workspaceId"`
	Goal             string             `json:"goal"`
	MaxIterations    int                `json:"maxIterations"`
	CurrentIteration int                `json:"currentIteration"`
	Status           ContinuationStatus `json:"status"`
}
