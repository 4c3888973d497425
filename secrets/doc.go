// Package secrets provides encrypted, access-controlled storage for one-time
// registration tokens, with pluggable backends selected by URI.
//
// Supported backends:
//
//   - awsssm:// - AWS SSM Parameter Store (SecureString parameters)
//   - vault://  - HashiCorp Vault KV v2
//   - file://   - Local filesystem, development and tests only
//
// Tokens are stored under a path namespaced per publisher display name:
//
//	/<app>/publishers/<displayName>/registration-token
//
// The namespacing exists so decrypt permission can be scoped per unit and,
// critically, granted only to the registration executor's identity and not to
// the publisher instance's own role. An instance must not be able to read its
// own token through instance metadata; the token reaches it only as a remote
// command argument.
package secrets
