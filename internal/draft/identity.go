package draft

import (
	"folio/api/internal/marker"
	"folio/api/internal/reference"
)

// identityOf reduces a citation key to the storage id of the work it names,
// so smith2023_12345678, pmid:12345678 and 12345678 compare equal.
func identityOf(key string) string {
	if id, ok := reference.KeyStorageID(key); ok {
		return id
	}
	return key
}

// keyAliases maps a work's identity to the first key form it was cited with.
type keyAliases map[string]string

// unify rewrites marker keys to the first-seen form of their work and drops
// keys repeated within one marker. markers must be in position order.
func (a keyAliases) unify(markers []marker.Marker) []marker.Marker {
	out := make([]marker.Marker, len(markers))
	for i, m := range markers {
		keys := make([]string, 0, len(m.Keys))
		seen := make(map[string]struct{}, len(m.Keys))
		for _, key := range m.Keys {
			id := identityOf(key)
			display, ok := a[id]
			if !ok {
				a[id] = key
				display = key
			}
			if _, dup := seen[display]; dup {
				continue
			}
			seen[display] = struct{}{}
			keys = append(keys, display)
		}
		m.Keys = keys
		out[i] = m
	}
	return out
}
