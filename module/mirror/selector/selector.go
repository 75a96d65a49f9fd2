// Package selector computes the working set of artifacts for a run.
package selector

import "github.com/zerocat/extension-mirror/module/mirror/types"

// Select returns the artifacts whose id is in ids together with the artifacts
// whose author is in authors. The result keeps the relative order of all,
// holds each id at most once (first occurrence wins) and is empty when both
// allow-lists are empty.
func Select(all []types.ArtifactDescriptor, ids, authors []string) []types.ArtifactDescriptor {
	if len(ids) == 0 && len(authors) == 0 {
		return []types.ArtifactDescriptor{}
	}

	idSet := toSet(ids)
	authorSet := toSet(authors)

	seen := make(map[string]struct{}, len(all))
	result := make([]types.ArtifactDescriptor, 0)
	for _, d := range all {
		_, byID := idSet[d.ID]
		_, byAuthor := authorSet[d.Author]
		if !byID && !byAuthor {
			continue
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		result = append(result, d)
	}
	return result
}

// Dedup drops repeated ids, keeping the first occurrence. It is used when a
// caller opts into mirroring a whole listing.
func Dedup(all []types.ArtifactDescriptor) []types.ArtifactDescriptor {
	seen := make(map[string]struct{}, len(all))
	result := make([]types.ArtifactDescriptor, 0, len(all))
	for _, d := range all {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		result = append(result, d)
	}
	return result
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
