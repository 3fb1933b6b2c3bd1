package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FindingCounts maps PHI category names to occurrence counts. It is the only
// shape of redaction data the store accepts.
type FindingCounts map[string]int

// Value implements driver.Valuer for the JSONB column.
func (f FindingCounts) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner for the JSONB column.
func (f *FindingCounts) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	case nil:
		*f = nil
		return nil
	default:
		return fmt.Errorf("unsupported findings column type %T", src)
	}
}

// Event is one recorded redaction outcome.
type Event struct {
	ID         int64         `db:"id" json:"id"`
	RequestID  string        `db:"request_id" json:"request_id"`
	Kind       string        `db:"kind" json:"kind"`
	Findings   FindingCounts `db:"findings" json:"findings"`
	GapCount   int           `db:"gap_count" json:"gap_count"`
	CacheHit   bool          `db:"cache_hit" json:"cache_hit"`
	DurationMS int64         `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}
