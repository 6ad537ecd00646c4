package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// timestampLayout sorts lexically in SQLite TEXT columns.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp stores times as fixed-width UTC text, which SQLite keeps as TEXT
// and PostgreSQL parses into TIMESTAMPTZ. Scanning accepts either form.
type Timestamp struct {
	time.Time
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC().Format(timestampLayout), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
