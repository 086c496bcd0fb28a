package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Record is the persisted unit of a flow.
//
// The wire shape is a flat object: reserved keys (name, parent, returnTo, state)
// sit alongside the flow data. Handle is the store key and the outbound
// correlation token; it is never written into the payload.
type Record struct {
	Handle    string
	Name      string
	Parent    string
	ReturnTo  string
	Preserved string
	Data      map[string]any
}

// NewRecord creates an empty record owned by the given flow.
func NewRecord(name string) *Record {
	return &Record{
		Name: name,
		Data: make(map[string]any),
	}
}

// RecordFromMap rebuilds a record from its flat wire shape.
// Reserved keys holding non-string values are kept as flow data.
func RecordFromMap(handle string, m map[string]any) *Record {
	rec := &Record{
		Handle: handle,
		Data:   make(map[string]any, len(m)),
	}
	for k, v := range m {
		s, isString := v.(string)
		switch {
		case k == KeyName && isString:
			rec.Name = s
		case k == KeyParent && isString:
			rec.Parent = s
		case k == KeyReturnTo && isString:
			rec.ReturnTo = s
		case k == KeyPreserved && isString:
			rec.Preserved = s
		default:
			rec.Data[k] = cloneValue(v)
		}
	}
	return rec
}

// Flatten returns the wire shape of the record. The result is a deep copy.
func (r *Record) Flatten() map[string]any {
	out := make(map[string]any, len(r.Data)+4)
	for k, v := range r.Data {
		out[k] = cloneValue(v)
	}
	if r.Name != "" {
		out[KeyName] = r.Name
	}
	if r.Parent != "" {
		out[KeyParent] = r.Parent
	}
	if r.ReturnTo != "" {
		out[KeyReturnTo] = r.ReturnTo
	}
	if r.Preserved != "" {
		out[KeyPreserved] = r.Preserved
	}
	return out
}

// Clone returns a deep copy of the record, handle included.
func (r *Record) Clone() *Record {
	return RecordFromMap(r.Handle, r.Flatten())
}

// IsEmpty reports whether the record carries nothing worth persisting.
// The owning flow name alone does not count.
func (r *Record) IsEmpty() bool {
	return len(r.Data) == 0 && r.Parent == "" && r.ReturnTo == "" && r.Preserved == ""
}

// State returns a fresh working state built from the record payload.
func (r *Record) State() *State {
	return NewState(r.Flatten())
}

// MarshalJSON encodes the flat wire shape.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

// UnmarshalJSON decodes the flat wire shape. The handle is left untouched.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	handle := r.Handle
	*r = *RecordFromMap(handle, m)
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies v. The JSON-shaped cases are handled directly; any
// other slice, array, map or pointer is copied through reflection so a record
// never shares mutable memory with its clones.
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, int, int64, json.Number:
		return v
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = cloneMap(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(cloneReflect(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(cloneReflect(v.Elem()))
		return out
	case reflect.Struct:
		// Exported fields are copied deeply; unexported ones by value.
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				out.Field(i).Set(cloneReflect(v.Field(i)))
			}
		}
		return out
	}
	return v
}
