// Package banter implements per-subject, time-bounded engagement sessions:
// a registry enforcing one active session per subject, a scheduler that
// fires a random number of messages at random times before the session
// deadline, and a correlator matching inbound replies to the message that
// provoked them.
//
// Invariants:
// - At most one active session exists per subject at any instant.
// - A session transitions to completed or cancelled exactly once.
// - Scheduled deliveries happen in non-decreasing time order and never
//   after a cancellation has been observed.
//
// Usage:
//
//	reg := banter.NewRegistry(log.Logger)
//	sess, _ := reg.Create(42, "Dave", chatID, endOfDay)
//	sched, _ := banter.NewScheduler(banter.SchedulerConfig{ /* ... */ })
//	sched.Start(ctx, sess)
package banter
