// Package debate contains the turn scheduler: it owns debate sessions,
// rotates speaking rights among participants, enforces pacing, and
// drives each session to completion or cancellation.
//
// # Sessions
//
// A Session is one running debate with a topic and a fixed participant
// list. Sessions live in a Registry that rejects duplicate ids and
// throttles rapid starts. Each session runs in its own goroutine; turns
// within a session are strictly serialized while independent sessions
// interleave freely.
//
// # Turn Loop
//
// Every loop iteration is one turn attempt, and a session terminates
// once attempts reach rounds times participants, no matter how many
// turns actually produced a message. Within one attempt the scheduler:
//
//  1. Waits out the candidate's min-delay if it spoke too recently.
//     Waiting defers the turn but does not consume an attempt.
//  2. Re-checks the persisted transcript tail; if the candidate wrote
//     the latest message anyway, the rotation is forced forward and the
//     attempt is spent without generating.
//  3. Generates the statement through the message pipeline, persists it
//     to the transcript, and rotates to the next participant. A failed
//     generation or a failed persist spends the attempt, advances the
//     rotation, and leaves the completed-turn count untouched.
//
// Persisting to the transcript is the commit point of a turn: nothing
// counts as spoken until the append succeeds.
//
// # Cancellation
//
// Stopping is cooperative. Stop sets a flag on the session; the loop
// polls it at every suspension point, including inside pacing sleeps,
// so a stop takes effect within one poll slice. A result that arrives
// after the stop was observed is discarded, never persisted.
//
// # Usage
//
//	scheduler := debate.NewScheduler(cfg.Debate, registry, generator,
//	    transcriptLog, profileStore, bus, archive, collector, logger)
//
//	id, err := scheduler.StartDebate(debate.StartRequest{
//	    Topic:        "Should cities ban private cars?",
//	    Participants: []string{"aurelius", "tempest"},
//	    Rounds:       5,
//	})
package debate
