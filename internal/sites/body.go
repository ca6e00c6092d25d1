package sites

import (
	"bytes"
	"encoding/json"
)

// Body is a JSON object that keeps insertion order. Some provider backends
// depend on the field order of the create request.
type Body struct {
	keys   []string
	values map[string]any
}

// NewBody creates an empty body.
func NewBody() *Body {
	return &Body{values: make(map[string]any)}
}

// Set adds or replaces key. A new key goes last; a replaced key keeps its position.
func (b *Body) Set(key string, v any) {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = v
}

// Get returns the value for key.
func (b *Body) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Delete removes key.
func (b *Body) Delete(key string) {
	if _, ok := b.values[key]; !ok {
		return
	}
	delete(b.values, key)
	for i, k := range b.keys {
		if k == key {
			b.keys = append(b.keys[:i], b.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in order.
func (b *Body) Keys() []string {
	return append([]string(nil), b.keys...)
}

// MarshalJSON encodes the object in insertion order.
func (b *Body) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(b.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
