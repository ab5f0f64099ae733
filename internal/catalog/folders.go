// Package catalog rebuilds the remote folder hierarchy as local paths
// and normalizes raw note listings into typed catalog records.
package catalog

import (
	"fmt"

	"github.com/willingning/minote-sync/internal/models"
)

// Anomaly kinds reported by path resolution and catalog building.
const (
	AnomalyFolderCycle    = "folder_cycle"
	AnomalyDanglingParent = "dangling_parent"
	AnomalyDanglingFolder = "dangling_folder"
)

// ResolvePaths maps every folder id to its sanitized path segments,
// root first. The parent graph comes from untrusted remote data, so
// walks carry a visited set: a parent cycle is broken at its member
// with the smallest id, which is reattached at the root with the rest
// of the cycle nested under it. Anchoring on the smallest id keeps the
// mapping independent of listing order. Dangling parent references
// fall back to the root and are reported.
//
// Sibling folders whose names sanitize to the same segment all get a
// short id-derived suffix. Suffixing every collider, not all-but-one,
// keeps the mapping independent of listing order.
func ResolvePaths(folders []models.Folder) (map[string][]string, []models.Anomaly) {
	byID := make(map[string]models.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}

	var anomalies []models.Anomaly

	// Phase 1: ancestor id chains (root..self), flat arena keyed by id.
	chains := make(map[string][]string, len(folders))
	for _, f := range folders {
		if _, done := chains[f.ID]; done {
			continue
		}

		// Walk up, collecting unresolved ids until we hit the root,
		// an already-resolved ancestor, a missing parent, or a repeat.
		var stack []string
		seen := make(map[string]bool)
		cur := f.ID
		for {
			if _, done := chains[cur]; done {
				break
			}
			if seen[cur] {
				// cur closed a parent cycle; settle all of its members.
				anomalies = append(anomalies, resolveCycle(chains, byID, stack, cur))
				break
			}
			seen[cur] = true
			stack = append(stack, cur)

			parent := byID[cur].ParentID
			if parent == "" {
				break
			}
			if _, ok := byID[parent]; !ok {
				anomalies = append(anomalies, models.Anomaly{
					Kind:    AnomalyDanglingParent,
					Subject: cur,
					Detail:  fmt.Sprintf("folder %q references unknown parent %s; attached to root", byID[cur].Name, parent),
				})
				break
			}
			cur = parent
		}

		// Resolve the collected stack from the highest ancestor down.
		// A node's chain is its parent's chain plus itself; cycle
		// members were already settled, and dangling refs resolve as
		// root-level.
		for i := len(stack) - 1; i >= 0; i-- {
			id := stack[i]
			if _, done := chains[id]; done {
				continue
			}
			var chain []string
			if parent := byID[id].ParentID; parent != "" {
				chain = append(chain, chains[parent]...)
			}
			chains[id] = append(chain, id)
		}
	}

	// Phase 2: sanitized segment per folder, with sibling collisions
	// disambiguated deterministically.
	type sibling struct{ parentKey, base string }
	groups := make(map[sibling][]string)
	bases := make(map[string]string, len(folders))
	for _, f := range folders {
		chain := chains[f.ID]
		parentKey := ""
		if len(chain) > 1 {
			parentKey = chain[len(chain)-2]
		}
		base := SanitizeName(f.Name, f.ID)
		bases[f.ID] = base
		key := sibling{parentKey, base}
		groups[key] = append(groups[key], f.ID)
	}
	segments := make(map[string]string, len(folders))
	for _, f := range folders {
		chain := chains[f.ID]
		parentKey := ""
		if len(chain) > 1 {
			parentKey = chain[len(chain)-2]
		}
		base := bases[f.ID]
		if len(groups[sibling{parentKey, base}]) > 1 {
			segments[f.ID] = base + "-" + ShortID(f.ID)
		} else {
			segments[f.ID] = base
		}
	}

	paths := make(map[string][]string, len(folders))
	for _, f := range folders {
		chain := chains[f.ID]
		path := make([]string, len(chain))
		for i, id := range chain {
			path[i] = segments[id]
		}
		paths[f.ID] = path
	}
	return paths, anomalies
}

// resolveCycle settles a detected parent cycle. Its members are the
// stack suffix from the repeated node; the member with the smallest id
// becomes the root-level anchor and the others nest under it in child
// direction, so the broken shape does not depend on where the walk
// entered the cycle.
func resolveCycle(chains map[string][]string, byID map[string]models.Folder, stack []string, repeat string) models.Anomaly {
	j := 0
	for stack[j] != repeat {
		j++
	}
	members := stack[j:]

	anchor := members[0]
	for _, id := range members[1:] {
		if id < anchor {
			anchor = id
		}
	}
	chains[anchor] = []string{anchor}

	// Each member's parent is also a member, so following the inverse
	// parent relation from the anchor visits the whole ring.
	childOf := make(map[string]string, len(members))
	for _, id := range members {
		childOf[byID[id].ParentID] = id
	}
	cur := anchor
	for i := 1; i < len(members); i++ {
		next := childOf[cur]
		chains[next] = append(append([]string(nil), chains[cur]...), next)
		cur = next
	}

	return models.Anomaly{
		Kind:    AnomalyFolderCycle,
		Subject: anchor,
		Detail:  fmt.Sprintf("folder %q is part of a parent cycle; attached to root", byID[anchor].Name),
	}
}
