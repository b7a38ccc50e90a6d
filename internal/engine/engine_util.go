package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

type GroupTemplate struct {
	ID       string   `yaml:"id" json:"id"`
	Counters []string `yaml:"counters" json:"counters"`
}

func (t GroupTemplate) clone() GroupTemplate {
	t.Counters = slices.Clone(t.Counters)
	return t
}

func (t GroupTemplate) validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: empty group id", ErrInvalidTemplate)
	}
	if len(t.Counters) == 0 {
		return fmt.Errorf("%w: group %q has no counters", ErrInvalidTemplate, t.ID)
	}
	seen := make(map[string]bool, len(t.Counters))
	for _, c := range t.Counters {
		if c == "" {
			return fmt.Errorf("%w: group %q has an empty counter id", ErrInvalidTemplate, t.ID)
		}
		if seen[c] {
			return fmt.Errorf("%w: group %q repeats counter %q", ErrInvalidTemplate, t.ID, c)
		}
		seen[c] = true
	}
	return nil
}

// DefaultTemplates is the two-screen layout: TV A with three tables, TV B with six.
func DefaultTemplates() []GroupTemplate {
	return []GroupTemplate{
		{ID: "tv-a", Counters: counterIDs(3)},
		{ID: "tv-b", Counters: counterIDs(6)},
	}
}

func counterIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("counter%d", i+1)
	}
	return ids
}

func NewGroup(t GroupTemplate) Group {
	g := Group{
		ID:         t.ID,
		NextTicket: 1,
		Counters:   make(Counters, len(t.Counters)),
	}
	for i, id := range t.Counters {
		g.Counters[i] = Counter{ID: id}
	}
	return g
}

type Counter struct {
	ID      string
	Serving int // 0 = none
}

// Counters keeps the declared counter order. It encodes as a JSON object in
// that order with null for an idle counter.
type Counters []Counter

func (cs Counters) index(id string) int {
	for i, c := range cs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (cs Counters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.ID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if c.Serving == 0 {
			buf.WriteString("null")
		} else {
			fmt.Fprintf(&buf, "%d", c.Serving)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (cs *Counters) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("counters: expected object, got %v", tok)
	}

	out := Counters{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := tok.(string)

		var serving *int
		if err := dec.Decode(&serving); err != nil {
			return fmt.Errorf("counters: %q: %w", id, err)
		}
		c := Counter{ID: id}
		if serving != nil {
			c.Serving = *serving
		}
		out = append(out, c)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*cs = out
	return nil
}
