package domain

import "strings"

// AssetRegistry is the fixed, ordered set of supported asset identifiers.
// It is read-only after construction and safe for concurrent use.
type AssetRegistry struct {
	ids []string
	set map[string]struct{}
}

// NewAssetRegistry copies ids, preserving order.
func NewAssetRegistry(ids []string) *AssetRegistry {
	r := &AssetRegistry{
		ids: make([]string, len(ids)),
		set: make(map[string]struct{}, len(ids)),
	}
	copy(r.ids, ids)
	for _, id := range ids {
		r.set[id] = struct{}{}
	}
	return r
}

// IDs returns a copy of the identifiers in configured order.
func (r *AssetRegistry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Contains reports whether id is supported. The comparison is exact.
func (r *AssetRegistry) Contains(id string) bool {
	_, ok := r.set[id]
	return ok
}

// Resolve maps a loose asset name to a supported identifier. A name matches
// an id when it is a substring of the id or equals the id with hyphens
// removed, ignoring case. The first match in configured order wins.
func (r *AssetRegistry) Resolve(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	for _, id := range r.ids {
		lower := strings.ToLower(id)
		if strings.Contains(lower, name) || strings.ReplaceAll(lower, "-", "") == name {
			return id, true
		}
	}
	return "", false
}
