// Package main (cmd/operator) implements one-shot orchestration commands for
// publisher fleets.
//
// The operator tool builds the same wiring as the API server but runs a
// single command and exits, which suits cron jobs, CI pipelines, and manual
// intervention:
//
//   - reconcile: converge the fleet to --name/--count and print the run report
//   - replace: destroy one unit by key and rebuild it with a fresh publisher
//     identity, registration token, and instance
//   - destroy: reconcile to an empty desired set, tearing every unit down
//   - drift: compare recorded state against the tenant and compute APIs;
//     exits non-zero when any unit drifted
//   - force-unlock: break a plan lock left behind by a crashed run
//
// The tenant API token is read from the NPA_API_TOKEN environment variable,
// never from a flag, so it cannot leak through process listings or shell
// history.
//
// Commands exit non-zero when any unit pipeline fails, with the full per-unit
// report on stdout for inspection.
package main
