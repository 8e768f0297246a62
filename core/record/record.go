package record

import (
	"sort"
	"time"
)

// EntityKey identifies a harvestable unit (e.g. a company slug).
type EntityKey string

// Fields maps a field name to a string, number or nil value.
type Fields map[string]any

// RawRecord is the fetched state of one entity.
type RawRecord struct {
	// Key is the entity key this record was fetched for.
	Key EntityKey `json:"key"`
	// Fields holds the harvested attributes.
	Fields Fields `json:"fields"`
	// FetchedAt is the time the record was retrieved from the source.
	FetchedAt time.Time `json:"fetched_at"`
}

// Get returns the value of a field and whether it is present.
func (r RawRecord) Get(name string) (any, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Clone returns a deep copy of the record's field map.
func (r RawRecord) Clone() RawRecord {
	return RawRecord{Key: r.Key, Fields: r.Fields.Clone(), FetchedAt: r.FetchedAt}
}

// Clone returns a shallow copy of the map; values are scalars.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Names returns the field names sorted alphabetically.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Fetched is the outcome of one successful entity fetch: the entity itself
// and the child records discovered under it.
type Fetched struct {
	Record   RawRecord   `json:"record"`
	Children []RawRecord `json:"children,omitempty"`
}

// UnifiedRecord is a child record joined with its parent.
type UnifiedRecord struct {
	// Key is the child's key.
	Key EntityKey `json:"key"`
	// ParentKey is the value of the child's foreign-key field.
	ParentKey EntityKey `json:"parent_key"`
	// ParentFound reports whether the parent existed at join time.
	ParentFound bool `json:"parent_found"`
	// Fields is the merged field set.
	Fields Fields `json:"fields"`
}
