// Package common holds process-wide identity and logging setup shared by all
// binaries in this module.
package common

// PackageName is used as the metrics namespace and the default service tag.
const PackageName = "npa_publisher_orchestrator"

// Version is set at build time via -ldflags.
var Version = "dev"
