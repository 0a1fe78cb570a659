// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is an ordered mapping of camelCase keys to decoded values, the
// object form of a decoded response. Keys keep their first-seen order.
type Object struct {
	m *orderedmap.OrderedMap[string, any]
}

// Table is the table form of a decoded response. Every row carries the
// column set of the table's header line, in header order.
type Table []*Object

// NewObject creates an empty Object.
func NewObject() *Object {
	return &Object{m: orderedmap.New[string, any]()}
}

// Set stores value under key, replacing any previous value.
func (o *Object) Set(key string, value any) {
	o.m.Set(key, value)
}

// Add stores value under key. When the key is already present the entry
// becomes a list holding every value seen for it.
func (o *Object) Add(key string, value any) {
	prev, ok := o.m.Get(key)
	if !ok {
		o.m.Set(key, value)
		return
	}
	if list, isList := prev.([]any); isList {
		o.m.Set(key, append(list, value))
		return
	}
	o.m.Set(key, []any{prev, value})
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	return o.m.Get(key)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return o.m.Len()
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.m.Len())
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Map returns an unordered copy, converting nested objects recursively.
func (o *Object) Map() map[string]any {
	out := make(map[string]any, o.m.Len())
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = plainValue(pair.Value)
	}
	return out
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	c := NewObject()
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		c.m.Set(pair.Key, cloneValue(pair.Value))
	}
	return c
}

// Merge deep-merges other into o. Nested objects are merged key by key;
// any other value in other replaces the value in o.
func (o *Object) Merge(other *Object) {
	if other == nil {
		return
	}
	for pair := other.m.Oldest(); pair != nil; pair = pair.Next() {
		src, srcIsObj := pair.Value.(*Object)
		if srcIsObj {
			if dst, ok := o.m.Get(pair.Key); ok {
				if dstObj, dstIsObj := dst.(*Object); dstIsObj {
					dstObj.Merge(src)
					continue
				}
			}
		}
		o.m.Set(pair.Key, cloneValue(pair.Value))
	}
}

// MarshalJSON encodes the object with its keys in order.
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.m)
}

func plainValue(v any) any {
	switch val := v.(type) {
	case *Object:
		return val.Map()
	case Table:
		rows := make([]map[string]any, len(val))
		for i, row := range val {
			rows[i] = row.Map()
		}
		return rows
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = plainValue(item)
		}
		return list
	default:
		return v
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Object:
		return val.Clone()
	case Table:
		rows := make(Table, len(val))
		for i, row := range val {
			rows[i] = row.Clone()
		}
		return rows
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = cloneValue(item)
		}
		return list
	default:
		return v
	}
}
