package service

import (
	"github.com/smallbiznis/greenroom/internal/permission"
	roledomain "github.com/smallbiznis/greenroom/internal/role/domain"
)

// MergePermissions applies overrides to a template permission set and
// returns a new set. An allow inserts the key, a deny removes it even when
// the template granted it. Overrides are deduplicated by key with the last
// entry winning, and keys outside the catalog are dropped.
func MergePermissions(template permission.Set, overrides []roledomain.Override) permission.Set {
	effective := template.Clone()
	for _, override := range dedupeOverrides(overrides) {
		if !override.Key.Valid() {
			continue
		}
		if override.Allowed {
			effective.Add(override.Key)
		} else {
			effective.Remove(override.Key)
		}
	}
	return effective
}

// dedupeOverrides keeps the last entry per key, preserving the relative
// order of the surviving entries.
func dedupeOverrides(overrides []roledomain.Override) []roledomain.Override {
	if len(overrides) < 2 {
		return overrides
	}
	last := make(map[permission.Key]int, len(overrides))
	for i, override := range overrides {
		last[override.Key] = i
	}
	out := make([]roledomain.Override, 0, len(last))
	for i, override := range overrides {
		if last[override.Key] == i {
			out = append(out, override)
		}
	}
	return out
}
