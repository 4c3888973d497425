/*
Package httpserver implements the HTTP API for the publisher orchestrator.

It exposes the reconciliation controller over a small chi-routed surface:

1. Orchestration API - reconcile, replace, report, and drift endpoints

2. Admin API - state inspection and plan-lock force-unlock for operators

# Orchestration API

  - POST /api/v1/reconcile runs a reconciliation of the desired unit set
    and returns the full per-unit run report. An optional JSON body
    overrides the configured base name and count for that run.
  - POST /api/v1/units/{key}/replace destroys one unit and rebuilds it with
    a fresh publisher identity, registration token, and instance.
  - GET /api/v1/report returns the most recent run report.
  - GET /api/v1/drift compares recorded state against the tenant and
    compute APIs without repairing anything.

Mutating requests are single-flight: while a run is in progress, competing
reconcile or replace requests receive 409 Conflict rather than queueing.

# Health endpoints

The server carries the usual livez/readyz pair plus drain/undrain for
load-balancer rotation, and an optional pprof mount for diagnostics. A
Prometheus metrics server runs alongside on its own listener.
*/
package httpserver
