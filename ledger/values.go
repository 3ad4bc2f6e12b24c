package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID identifies a record. The web app writes ids either as strings or as numbers
// (Date.now() values); an ID keeps the form it was read in so it is written back the same.
type ID struct {
	value   string
	numeric bool
}

// NewID returns a string ID.
func NewID(s string) ID { return ID{value: s} }

func (id ID) String() string { return id.value }

// IsZero reports whether the ID is empty.
func (id ID) IsZero() bool { return id.value == "" }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case string(b) == "null":
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number, got %s", b)
	}
	*id = ID{value: n.String(), numeric: true}
	return nil
}

// Int is an integer that may have been written as a JSON string.
type Int int

func (i *Int) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*i = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return fmt.Errorf("expected an integer, got %s", b)
	}
	*i = Int(f)
	return nil
}

// Bool is a boolean that may have been written as a JSON string or as 0/1.
type Bool bool

func (v *Bool) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*v = false
			return nil
		}
	}
	parsed, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("expected a boolean, got %s", b)
	}
	*v = Bool(parsed)
	return nil
}
