// Package main (cmd/server) implements the publisher orchestration API
// server.
//
// The server exposes reconcile, replace, report, and drift endpoints over
// HTTP, plus operator-only admin endpoints for state inspection and plan-lock
// recovery. A Prometheus metrics listener runs alongside the API.
//
// Reconciliation can be driven two ways: on demand through POST
// /api/v1/reconcile, or periodically with --reconcile-interval-seconds, in
// which case the server converges the fleet to --name/--count on a timer.
// Both paths share the plan lock, so a periodic run and an API-triggered run
// never interleave.
//
// AWS credentials follow the default SDK credential chain unless static keys
// are passed by flag; the tenant API token comes from the NPA_API_TOKEN
// environment variable. The server implements graceful shutdown on
// SIGINT/SIGTERM and supports health checks, drain/undrain for load-balancer
// rotation, and optional pprof endpoints.
package main
