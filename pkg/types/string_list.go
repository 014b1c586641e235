package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList persists as a JSON array.
type StringList []string

// Value marshals the list into JSON.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes a JSON array.
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = StringList{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("string list: unsupported scan type %T", value)
	}

	result := StringList{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*s = result
	return nil
}

// Contains reports whether value is present.
func (s StringList) Contains(value string) bool {
	for _, item := range s {
		if item == value {
			return true
		}
	}
	return false
}
