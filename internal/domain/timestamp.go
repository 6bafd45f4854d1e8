package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Timestamp is stored as unix milliseconds so sqlite can compare and sort it
// without string formats getting in the way.
type Timestamp struct{ time.Time }

func At(t time.Time) Timestamp { return Timestamp{t.UTC()} }

func (t Timestamp) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UnixMilli(), nil
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Timestamp{}
	case int64:
		*t = Timestamp{time.UnixMilli(v).UTC()}
	case float64:
		*t = Timestamp{time.UnixMilli(int64(v)).UTC()}
	default:
		return fmt.Errorf("timestamp: unsupported type %T", src)
	}
	return nil
}
