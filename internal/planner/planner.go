// Package planner computes the minimal outstanding work set for a portal
// cycle from three independently gathered ID sets. It is what makes repeated
// runs idempotent and resumable after a crash mid-download.
package planner

import "sort"

// Plan partitions the remote ID set for one cycle.
type Plan struct {
	// Download holds IDs present remotely but in neither the store nor the
	// local download directory: remote − store − local.
	Download []string
	// Satisfied holds IDs whose audio is already on disk but not yet
	// recorded in the store: (remote ∩ local) − store. These skip the
	// download stage and go straight to upload/persist.
	Satisfied []string
}

// Compute derives the plan from the remote enumeration, the IDs already in
// the store, and the IDs already materialized as local files. Inputs may be
// gathered in any order; the result depends only on set membership. Output
// slices are sorted so the plan is deterministic.
func Compute(remote, inStore, local []string) Plan {
	store := toSet(inStore)
	disk := toSet(local)

	var plan Plan
	seen := make(map[string]bool, len(remote))
	for _, id := range remote {
		if seen[id] {
			continue
		}
		seen[id] = true

		if store[id] {
			continue
		}
		if disk[id] {
			plan.Satisfied = append(plan.Satisfied, id)
		} else {
			plan.Download = append(plan.Download, id)
		}
	}

	sort.Strings(plan.Download)
	sort.Strings(plan.Satisfied)
	return plan
}

// Outstanding reports the total number of IDs the cycle still has work for.
func (p Plan) Outstanding() int {
	return len(p.Download) + len(p.Satisfied)
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}
