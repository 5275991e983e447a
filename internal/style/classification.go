package style

import (
	"maps"
	"slices"

	"github.com/joeblew999/plat-wfs/internal/feature"
)

// ClassificationTable maps attribute values to color overrides. It is
// read-only once built.
type ClassificationTable struct {
	entries map[string]Colors
}

// NewClassificationTable copies entries into a new table.
func NewClassificationTable(entries map[string]Colors) *ClassificationTable {
	return &ClassificationTable{entries: maps.Clone(entries)}
}

// Lookup returns the entry for an attribute value. Non-string values are
// matched by their display form, so a numeric code 3 matches key "3".
func (t *ClassificationTable) Lookup(value any) (Colors, bool) {
	if t == nil || value == nil {
		return Colors{}, false
	}
	c, ok := t.entries[feature.FormatValue(value)]
	return c, ok
}

// Len returns the number of entries.
func (t *ClassificationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Keys returns the classification keys in sorted order.
func (t *ClassificationTable) Keys() []string {
	if t == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(t.entries))
}
