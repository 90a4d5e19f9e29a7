package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CounterMap stores named usage counters as a jsonb object.
type CounterMap map[string]int64

func (m *CounterMap) Scan(src any) error {
	if src == nil {
		*m = CounterMap{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return m.parseFromBytes([]byte(v))
	case []byte:
		return m.parseFromBytes(v)
	default:
		return fmt.Errorf("CounterMap: unsupported Scan type %T", src)
	}
}

func (m CounterMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]int64(m))
	if err != nil {
		return nil, fmt.Errorf("CounterMap: marshal: %w", err)
	}
	return string(raw), nil
}

func (m *CounterMap) parseFromBytes(raw []byte) error {
	if len(raw) == 0 {
		*m = CounterMap{}
		return nil
	}
	var out map[string]int64
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("CounterMap: parse: %w", err)
	}
	if out == nil {
		out = map[string]int64{}
	}
	*m = CounterMap(out)
	return nil
}
