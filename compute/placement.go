package compute

// SubnetForOrdinal places a unit's instance deterministically across the
// configured network segments. Units spread round-robin by creation ordinal,
// so two consecutive units land in different failure domains whenever more
// than one segment is configured.
func SubnetForOrdinal(subnetIDs []string, ordinal int) string {
	if len(subnetIDs) == 0 {
		return ""
	}
	if ordinal < 0 {
		ordinal = -ordinal
	}
	return subnetIDs[ordinal%len(subnetIDs)]
}
