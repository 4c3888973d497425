// Package compute provisions publisher virtual machines on EC2.
//
// Instances are placed in egress-only subnets chosen deterministically by the
// unit's creation ordinal (round-robin across segments), tagged with the unit
// key for all later addressing, and given an instance profile limited to the
// remote-management agent and optional metrics reporting. The profile never
// includes permission to read registration tokens, and the bootstrap script
// never embeds one, since user data is visible through the provider's
// instance-introspection API.
package compute
