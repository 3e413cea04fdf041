// Package workflow drives task processing: a pool of workers claims pending
// tasks, runs the cleaning pipeline on each, and records the terminal state.
//
// Key components:
//   - Manager: owns the worker pool, heartbeat loops, and stale-task
//     reclamation; Start/Stop bound its lifetime
//   - Runner: executes one claimed task end to end (probe, decode, clean,
//     encode, deliver)
//   - TaskConfig: the per-task processing snapshot captured at submission
//
// Workers never share a task: claims are atomic at the store level, and a
// task's state is owned by its worker until it reaches a terminal status.
// The completion callback fires after the terminal state is recorded and
// never influences it.
package workflow
