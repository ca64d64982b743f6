/*
Package event provides a type-safe pub/sub event system for forge's
Supervisor to announce PTY output, continuation and synthesis progress,
and workspace lifecycle changes, decoupled from whoever is listening (the
HTTP/SSE facade, tests, or nothing at all).

# Architecture

Publish marshals an Event onto a single watermill gochannel topic
("forge.events"); one dispatch goroutine per Bus drains that topic and
calls subscribers synchronously, one event at a time, in the exact order
gochannel delivered them. Routing every event type through one topic and
one dispatch loop is what gives the bus total delivery order across
types, not just within a type: a pty.data chunk published before a
pty.exit for the same ptyId is guaranteed to reach every subscriber
first. Because watermill messages carry only a []byte payload, Publish
wraps Data in a JSON envelope and the dispatch loop reverses that with
decodeEventData, which switches on EventType to recover the concrete
payload struct.

PublishSync bypasses the queue entirely and calls subscribers directly
in the caller's goroutine, for callers that need delivery to have
completed before proceeding.

# Event Types

  - pty.data: a chunk of PTY output, tagged with ptyId
  - pty.exit: a PTY's child process terminated, exactly once
  - continuation.iteration: the Continuation Engine re-engaged the assistant
  - continuation.done({ptyId, iterations}): a continuation ran to
    completion
  - continuation.max_reached({ptyId, iterations, goal}): a continuation
    hit its iteration cap
  - continuation.cancelled: a continuation was stopped by its caller
  - synthesis.progress: one of n synthesis runs completed
  - synthesis.done: all runs plus the final synthesis call completed
  - workspace.opened: a workspace was opened or re-opened
  - session.ended: an agent session was torn down
  - notification.idle: a ptyId produced output, then went quiet while the
    UI window was unfocused
  - notification.exit: a ptyId's process exited while the UI window was
    unfocused

# Basic Usage

Publishing events:

	event.Publish(event.Event{
		Type: event.PtyData,
		Data: event.PtyDataData{PtyID: ptyID, Chunk: chunk},
	})

	event.PublishSync(event.Event{
		Type: event.ContinuationIteration,
		Data: event.ContinuationIterationData{PtyID: ptyID, Iteration: i},
	})

Subscribing:

	unsubscribe := event.Subscribe(event.PtyExit, func(e event.Event) {
		data := e.Data.(event.PtyExitData)
		log.Info().Str("ptyId", data.PtyID).Int("code", data.Code).Msg("pty exited")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

PublishSync calls subscribers synchronously in the publisher's goroutine.
Subscribers MUST complete quickly, use non-blocking channel sends, and
never call Publish/PublishSync re-entrantly.

# Custom Event Bus

	bus := event.NewBus()
	defer bus.Close()

# Testing

	event.Reset() // clears global bus subscribers between tests
*/
package event
