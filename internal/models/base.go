// Package models defines the job domain types and the GORM models used to
// persist run history.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// ULID identifies persisted runs and outcomes. IDs generated by one process
// are strictly increasing, so ordering by ID is ordering by creation.
// The zero ULID is stored as NULL and encoded as JSON null.
type ULID ulid.ULID

// NewULID returns a new monotonic ULID.
func NewULID() ULID {
	return ULID(ulid.Make())
}

// ParseULID parses the canonical 26 character form. An empty string yields
// the zero ULID.
func ParseULID(s string) (ULID, error) {
	if s == "" {
		return ULID{}, nil
	}
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ULID{}, fmt.Errorf("invalid ULID %q: %w", s, err)
	}
	return ULID(id), nil
}

func (u ULID) String() string {
	return ulid.ULID(u).String()
}

// Time returns the creation time encoded in the ULID.
func (u ULID) Time() time.Time {
	return ulid.Time(ulid.ULID(u).Time())
}

func (u ULID) IsZero() bool {
	return u == ULID{}
}

// Value implements driver.Valuer.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements sql.Scanner.
func (u *ULID) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case nil:
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported type for ULID: %T", value)
	}
	id, err := ParseULID(s)
	if err != nil {
		return err
	}
	*u = id
	return nil
}

func (u ULID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(u.String())
}

func (u *ULID) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid ULID JSON: %w", err)
	}
	if s == nil {
		*u = ULID{}
		return nil
	}
	id, err := ParseULID(*s)
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// GormDataType returns the column type used for ULID fields.
func (ULID) GormDataType() string {
	return "varchar(26)"
}

// BaseModel is embedded by every persisted record.
type BaseModel struct {
	ID        ULID      `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an ID to records created without one.
func (b *BaseModel) BeforeCreate(*gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewULID()
	}
	return nil
}
