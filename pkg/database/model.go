package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Bug represents a record in the public.pov_bugs table
type Bug struct {
	ID           int       `gorm:"primaryKey;column:id"`
	ProjectID    string    `gorm:"column:project_id;not null"`
	VerdictID    string    `gorm:"column:verdict_id;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()"`
	Architecture string    `gorm:"column:architecture;not null"`
	POC          string    `gorm:"column:poc;not null"`
	HarnessName  string    `gorm:"column:harness_name;not null"`
	Sanitizer    string    `gorm:"column:sanitizer;not null"`
	ExitCode     int       `gorm:"column:exit_code"`
	Labels       Labels    `gorm:"column:labels;type:jsonb"`
}

func (Bug) TableName() string {
	return "pov_bugs"
}

// Labels holds the triggered sanitizer labels as a jsonb array
type Labels []string

// Value implements the driver.Valuer interface for the Labels type
func (l Labels) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for the Labels type
func (l *Labels) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(raw, l)
}
