// Package tenant implements the HTTP client for the SaaS publisher-management
// API: creating publisher identities, issuing one-time registration tokens,
// and deleting identities once their instance is gone.
//
// Authentication uses a bearer token supplied out-of-band via the
// NPA_API_TOKEN environment variable. Throttled requests (429) are retried
// with exponential backoff; conflict and auth failures surface immediately
// with the response body preserved for diagnosis.
package tenant
