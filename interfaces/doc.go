// Package interfaces defines the shared domain types, component interfaces,
// and error taxonomy of the publisher orchestrator.
//
// The orchestrator drives each publisher unit through a create pipeline:
//
//	tenant identity -> one-time token -> encrypted secret -> instance launch ->
//	heartbeat wait -> server-side token resolution + remote registration
//
// and a destroy pipeline that strictly terminates the instance before the
// tenant identity is deleted (the tenant refuses to delete an identity with a
// live connection).
//
// Each component is expressed as a small interface so implementations backed
// by real provider APIs can be substituted with mocks in tests:
//
//   - TenantClient: SaaS publisher management API
//   - SecretStore: encrypted key-value store for registration tokens
//   - ComputeProvisioner: virtual machine lifecycle
//   - ReadinessPoller: management-plane heartbeat wait
//   - RegistrationExecutor: remote-execution channel for registration
//   - StateStore, PlanLock: controller persistence and run serialization
//
// Errors cross component boundaries as wrapped sentinel errors (ErrNotFound,
// ErrConflict, ErrTokenConsumed, ...) and are bucketed by remediation with
// Classify.
package interfaces
