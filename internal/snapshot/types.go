package snapshot

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONStringArray stores a creator list as a jsonb column, adapted
// from the teacher pack's gorm JSON-column idiom.
type JSONStringArray []string

// Scan implements sql.Scanner.
func (j *JSONStringArray) Scan(value interface{}) error {
	if value == nil {
		*j = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Value implements driver.Valuer.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}
