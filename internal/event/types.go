package event

import "encoding/json"

// PtyDataData is the payload for pty.data events: one output chunk from a
// running PTY, tagged with the session's ptyId.
type PtyDataData struct {
	PtyID string `json:"ptyId"`
	Chunk []byte `json:"chunk"`
}

// PtyExitData is the payload for pty.exit events, emitted exactly once
// when a PTY's child process terminates for any reason.
type PtyExitData struct {
	PtyID string `json:"ptyId"`
	Code  int    `json:"code"`
}

// ContinuationIterationData is the payload for continuation.iteration
// events: i is strictly monotonic within a single ptyId's continuation run.
type ContinuationIterationData struct {
	PtyID     string `json:"ptyId"`
	Iteration int    `json:"iteration"`
}

// ContinuationTerminalData is the payload for continuation.cancelled.
type ContinuationTerminalData struct {
	PtyID string `json:"ptyId"`
}

// ContinuationDoneData is the payload for continuation.done: iterations is
// the number of re-engagements the run completed before the completion
// signal was observed.
type ContinuationDoneData struct {
	PtyID      string `json:"ptyId"`
	Iterations int    `json:"iterations"`
}

// ContinuationMaxReachedData is the payload for continuation.max_reached:
// iterations equals the run's configured cap, and goal is the original
// goal text so a caller can re-offer it without tracking state itself.
type ContinuationMaxReachedData struct {
	PtyID      string `json:"ptyId"`
	Iterations int    `json:"iterations"`
	Goal       string `json:"goal"`
}

// SynthesisProgressData is the payload for synthesis.progress events.
type SynthesisProgressData struct {
	JobID     string `json:"jobId"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// SynthesisDoneData is the payload for synthesis.done events. SessionID
// names the fresh session the final synthesis run was bound to; the UI is
// expected to spawn an interactive resume against it.
type SynthesisDoneData struct {
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId"`
	Total     int    `json:"total"`
}

// WorkspaceOpenedData is the payload for workspace.opened events.
type WorkspaceOpenedData struct {
	WorkspaceID string `json:"workspaceId"`
	Path        string `json:"path"`
}

// SessionEndedData is the payload for session.ended events.
type SessionEndedData struct {
	SessionID   string `json:"sessionId"`
	WorkspaceID string `json:"workspaceId"`
}

// NotificationIdleData is the payload for notification.idle events: ptyId
// produced output, then went quiet for the idle window while unfocused.
type NotificationIdleData struct {
	PtyID string `json:"ptyId"`
}

// NotificationExitData is the payload for notification.exit events: ptyId's
// process exited while the window was unfocused.
type NotificationExitData struct {
	PtyID string `json:"ptyId"`
	Code  int    `json:"code"`
}

// decodeEventData reconstructs eventType's concrete payload struct from its
// marshaled JSON bytes, undoing the type erasure Publish's envelope
// encoding imposes on Event.Data. An unrecognized event type is passed
// through as raw JSON rather than dropped, so the dispatch loop still
// delivers it, de-typed, instead of silently discarding the message.
func decodeEventData(eventType EventType, raw json.RawMessage) (any, error) {
	switch eventType {
	case PtyData:
		var d PtyDataData
		err := json.Unmarshal(raw, &d)
		return d, err
	case PtyExit:
		var d PtyExitData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ContinuationIteration:
		var d ContinuationIterationData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ContinuationDone:
		var d ContinuationDoneData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ContinuationMaxReached:
		var d ContinuationMaxReachedData
		err := json.Unmarshal(raw, &d)
		return d, err
	case ContinuationCancelled:
		var d ContinuationTerminalData
		err := json.Unmarshal(raw, &d)
		return d, err
	case SynthesisProgress:
		var d SynthesisProgressData
		err := json.Unmarshal(raw, &d)
		return d, err
	case SynthesisDone:
		var d SynthesisDoneData
		err := json.Unmarshal(raw, &d)
		return d, err
	case WorkspaceOpened:
		var d WorkspaceOpenedData
		err := json.Unmarshal(raw, &d)
		return d, err
	case SessionEnded:
		var d SessionEndedData
		err := json.Unmarshal(raw, &d)
		return d, err
	case NotificationIdle:
		var d NotificationIdleData
		err := json.Unmarshal(raw, &d)
		return d, err
	case NotificationExit:
		var d NotificationExitData
		err := json.Unmarshal(raw, &d)
		return d, err
	default:
		return raw, nil
	}
}
