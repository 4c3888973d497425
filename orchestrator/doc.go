// Package orchestrator reconciles a desired set of publisher units against
// what actually exists, driving the tenant API, secret store, and compute
// provider through per-unit pipelines.
//
// A reconciliation run takes the plan lock, loads the persisted unit records,
// diffs them against the desired set by unit key, and executes the resulting
// plan with one goroutine per unit. Creation walks identity, token, instance,
// heartbeat, and remote registration in order, persisting progress after each
// externally visible step. Destruction terminates the instance and waits for
// it before touching the tenant-side identity, so a publisher record is never
// deleted while its instance might still be serving traffic.
//
// Failures are isolated per unit: one unit's pipeline failing never rolls
// back or blocks its siblings. The run's Report carries every unit's outcome
// plus any drift warnings.
package orchestrator
