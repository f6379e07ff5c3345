package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry is one edit operation: a name and its raw, not yet interpreted
// parameters.
type Entry struct {
	Name   string
	Params json.RawMessage
}

// EditSpec is an ordered collection of edit operations. JSON objects
// decode with their key order preserved, because operations apply in
// exactly the order the caller wrote them; two specs with the same
// entries in different orders are different edits.
type EditSpec struct {
	entries []Entry
}

// UnmarshalJSON decodes a JSON object into an ordered spec. A duplicated
// key keeps its first position but takes the last value, the way
// JavaScript object parsing behaves.
func (s *EditSpec) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("edit specification: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("edit specification must be a JSON object")
	}

	var entries []Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("edit specification: %w", err)
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("edit %q: %w", key, err)
		}
		replaced := false
		for i := range entries {
			if entries[i].Name == key {
				entries[i].Params = raw
				replaced = true
				break
			}
		}
		if !replaced {
			entries = append(entries, Entry{Name: key, Params: raw})
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("edit specification: %w", err)
	}

	s.entries = entries
	return nil
}

// MarshalJSON encodes the spec back to a JSON object in entry order.
func (s EditSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if len(e.Params) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(e.Params)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Set appends the named operation, or replaces its parameters in place
// when the name is already present.
func (s *EditSpec) Set(name string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("edit %q: %w", name, err)
	}
	for i := range s.entries {
		if s.entries[i].Name == name {
			s.entries[i].Params = raw
			return nil
		}
	}
	s.entries = append(s.entries, Entry{Name: name, Params: raw})
	return nil
}

// Get returns the raw parameters of the named operation.
func (s EditSpec) Get(name string) (json.RawMessage, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e.Params, true
		}
	}
	return nil, false
}

// Has reports whether the named operation is present.
func (s EditSpec) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Len returns the number of operations.
func (s EditSpec) Len() int {
	return len(s.entries)
}

// Entries returns the operations in application order.
func (s EditSpec) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// WithDefaultResize returns a copy of the spec, appending a final
// pass-through resize when the caller did not include one. Every
// processed spec therefore has a resize entry, which keeps overlay
// measurements uniform. The receiver is never modified.
func (s EditSpec) WithDefaultResize() EditSpec {
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	out := EditSpec{entries: entries}
	if !out.Has(opResize) {
		out.entries = append(out.entries, Entry{
			Name:   opResize,
			Params: json.RawMessage(`{"fit":"inside"}`),
		})
	}
	return out
}
