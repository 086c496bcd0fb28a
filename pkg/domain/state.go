package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// State is the request-scoped working state handed to handlers.
//
// It is a single flat object: flow data plus the reserved keys. Mutations stay
// in memory; the dispatcher decides at classification time whether the final
// value is persisted. State is not safe for concurrent use.
type State struct {
	values map[string]any
}

// NewState wraps the given values. The map is owned by the State afterwards.
func NewState(values map[string]any) *State {
	if values == nil {
		values = make(map[string]any)
	}
	return &State{values: values}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (s *State) GetString(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Set stores a value. Setting a reserved key to an empty string clears it.
func (s *State) Set(key string, value any) {
	if str, ok := value.(string); ok && str == "" && isReserved(key) {
		delete(s.values, key)
		return
	}
	s.values[key] = value
}

// Delete removes key.
func (s *State) Delete(key string) {
	delete(s.values, key)
}

// Len returns the number of keys, reserved ones included.
func (s *State) Len() int {
	return len(s.values)
}

// Name returns the owning flow name.
func (s *State) Name() string { return s.GetString(KeyName) }

// Parent returns the handle of the enclosing record, if any.
func (s *State) Parent() string { return s.GetString(KeyParent) }

// ReturnTo returns the completion target, if any.
func (s *State) ReturnTo() string { return s.GetString(KeyReturnTo) }

// SetReturnTo sets the location to redirect to when the flow completes.
func (s *State) SetReturnTo(location string) { s.Set(KeyReturnTo, location) }

// Map returns a deep copy of the flat values.
func (s *State) Map() map[string]any {
	return cloneMap(s.values)
}

// Decode copies the state into a typed struct using mapstructure tags.
func (s *State) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build state decoder: %w", err)
	}
	if err := dec.Decode(s.values); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	return nil
}

// Record converts the working state back into a record under handle.
func (s *State) Record(handle string) *Record {
	return RecordFromMap(handle, s.values)
}

func isReserved(key string) bool {
	switch key {
	case KeyName, KeyParent, KeyReturnTo, KeyPreserved:
		return true
	}
	return false
}
