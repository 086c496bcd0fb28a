package domain

import (
	"reflect"
	"sort"
)

// RecordDiff describes how a working record drifted from its loaded snapshot.
type RecordDiff struct {
	// Changed lists keys that were added or modified, reserved keys included.
	Changed []string `json:"changed,omitempty"`

	// Removed lists keys present in the snapshot but gone from the new record.
	Removed []string `json:"removed,omitempty"`
}

// Diff compares two records by their wire shape. Handles are ignored.
// It returns nil when the payloads are identical.
func Diff(oldRec, newRec *Record) *RecordDiff {
	if newRec == nil {
		return nil
	}

	var oldFlat map[string]any
	if oldRec != nil {
		oldFlat = oldRec.Flatten()
	}
	newFlat := newRec.Flatten()

	diff := &RecordDiff{}
	for k, newVal := range newFlat {
		oldVal, exists := oldFlat[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			diff.Changed = append(diff.Changed, k)
		}
	}
	for k := range oldFlat {
		if _, exists := newFlat[k]; !exists {
			diff.Removed = append(diff.Removed, k)
		}
	}

	if diff.IsEmpty() {
		return nil
	}
	sort.Strings(diff.Changed)
	sort.Strings(diff.Removed)
	return diff
}

// IsEmpty reports whether the diff carries no change.
func (d *RecordDiff) IsEmpty() bool {
	return d == nil || (len(d.Changed) == 0 && len(d.Removed) == 0)
}
