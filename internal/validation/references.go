package validation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"

	"github.com/rpattn/sheetingest/internal/domain"
)

// References holds the primary keys of reference kinds visible to
// referential checks. The zero value is not usable; use NewReferences.
type References struct {
	keys map[domain.Kind]map[int64]struct{}
}

// NewReferences returns an empty reference set.
func NewReferences() *References {
	return &References{keys: make(map[domain.Kind]map[int64]struct{})}
}

// Add registers ids as existing keys of kind.
func (r *References) Add(kind domain.Kind, ids ...int64) {
	set, ok := r.keys[kind]
	if !ok {
		set = make(map[int64]struct{}, len(ids))
		r.keys[kind] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// Contains reports whether id is a known key of kind.
func (r *References) Contains(kind domain.Kind, id int64) bool {
	_, ok := r.keys[kind][id]
	return ok
}

// Digest fingerprints the keys of the given kinds. Two sets with the same keys
// produce the same digest regardless of insertion order.
func (r *References) Digest(kinds ...domain.Kind) string {
	h := sha256.New()
	var buf [8]byte
	for _, kind := range kinds {
		h.Write([]byte(kind))
		h.Write([]byte{0})

		ids := make([]int64, 0, len(r.keys[kind]))
		for id := range r.keys[kind] {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			binary.BigEndian.PutUint64(buf[:], uint64(id))
			h.Write(buf[:])
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ReferencedKinds lists the reference kinds that kind's columns point at, in
// schema order.
func ReferencedKinds(kind domain.Kind) []domain.Kind {
	var kinds []domain.Kind
	for _, field := range kind.Fields() {
		if field.ReferenceEntityType != "" && !slices.Contains(kinds, field.ReferenceEntityType) {
			kinds = append(kinds, field.ReferenceEntityType)
		}
	}
	return kinds
}
