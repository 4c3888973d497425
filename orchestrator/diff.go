package orchestrator

import (
	"sort"

	"github.com/ruteri/npa-publisher-orchestrator/interfaces"
)

// Plan is the reconciliation decision: which units to create, destroy,
// replace, and leave untouched. It is computed as a pure function of current
// and desired state so it can be inspected and tested in isolation.
type Plan struct {
	ToCreate  []interfaces.PublisherUnit
	ToDestroy []*interfaces.UnitRecord
	ToReplace []ReplacePair
	Unchanged []interfaces.UnitKey
}

// ReplacePair couples a desired unit with the stale record it replaces.
type ReplacePair struct {
	Unit   interfaces.PublisherUnit
	Record *interfaces.UnitRecord
}

// Empty reports whether the plan performs no operations.
func (p Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToDestroy) == 0 && len(p.ToReplace) == 0
}

// Diff compares current records against the desired unit set, keyed strictly
// by unit key. A unit present in both but whose previous pipeline never
// completed registration is scheduled for replacement: its token may already
// be consumed, and a consumed token can never be reused.
func Diff(current map[interfaces.UnitKey]*interfaces.UnitRecord, desired []interfaces.PublisherUnit) Plan {
	var plan Plan

	desiredByKey := make(map[interfaces.UnitKey]interfaces.PublisherUnit, len(desired))
	for _, unit := range desired {
		desiredByKey[unit.Key] = unit
	}

	for _, unit := range desired {
		rec, exists := current[unit.Key]
		switch {
		case !exists:
			plan.ToCreate = append(plan.ToCreate, unit)
		case !rec.Registered:
			plan.ToReplace = append(plan.ToReplace, ReplacePair{Unit: unit, Record: rec})
		default:
			plan.Unchanged = append(plan.Unchanged, unit.Key)
		}
	}

	for key, rec := range current {
		if _, wanted := desiredByKey[key]; !wanted {
			plan.ToDestroy = append(plan.ToDestroy, rec)
		}
	}

	// Deterministic ordering for logs and tests; execution is per-unit
	// concurrent anyway.
	sort.Slice(plan.ToCreate, func(i, j int) bool { return plan.ToCreate[i].Key < plan.ToCreate[j].Key })
	sort.Slice(plan.ToDestroy, func(i, j int) bool { return plan.ToDestroy[i].Key < plan.ToDestroy[j].Key })
	sort.Slice(plan.ToReplace, func(i, j int) bool { return plan.ToReplace[i].Unit.Key < plan.ToReplace[j].Unit.Key })
	sort.Slice(plan.Unchanged, func(i, j int) bool { return plan.Unchanged[i] < plan.Unchanged[j] })

	return plan
}
