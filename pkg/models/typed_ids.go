package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// UserID is a typed ID for users
type UserID struct {
	uuid uuid.UUID
}

func NewUserID() UserID {
	return UserID{uuid: uuid.New()}
}

func NewUserIDFromUUID(id uuid.UUID) UserID {
	return UserID{uuid: id}
}

func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user ID: %w", err)
	}
	return UserID{uuid: id}, nil
}

func (u UserID) UUID() uuid.UUID { return u.uuid }
func (u UserID) String() string  { return u.uuid.String() }
func (u UserID) IsZero() bool    { return u.uuid == uuid.Nil }

func (u UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.uuid.String())
}

func (u *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	u.uuid = id
	return nil
}

func (u UserID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(u.uuid.String())
}

func (u *UserID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &u.uuid)
}

func (u UserID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.uuid.String(), nil
}

func (u *UserID) Scan(value any) error {
	return scanUUID(value, &u.uuid)
}

func (UserID) GormDataType() string { return "uuid" }

// DriveID is a typed ID for drives
type DriveID struct {
	uuid uuid.UUID
}

func NewDriveID() DriveID {
	return DriveID{uuid: uuid.New()}
}

func NewDriveIDFromUUID(id uuid.UUID) DriveID {
	return DriveID{uuid: id}
}

func ParseDriveID(s string) (DriveID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return DriveID{}, fmt.Errorf("invalid drive ID: %w", err)
	}
	return DriveID{uuid: id}, nil
}

func (d DriveID) UUID() uuid.UUID { return d.uuid }
func (d DriveID) String() string  { return d.uuid.String() }
func (d DriveID) IsZero() bool    { return d.uuid == uuid.Nil }

func (d DriveID) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.uuid.String())
}

func (d *DriveID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	d.uuid = id
	return nil
}

func (d DriveID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d.uuid.String())
}

func (d *DriveID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &d.uuid)
}

func (d DriveID) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.uuid.String(), nil
}

func (d *DriveID) Scan(value any) error {
	return scanUUID(value, &d.uuid)
}

func (DriveID) GormDataType() string { return "uuid" }

// PageID is a typed ID for pages
type PageID struct {
	uuid uuid.UUID
}

func NewPageID() PageID {
	return PageID{uuid: uuid.New()}
}

func NewPageIDFromUUID(id uuid.UUID) PageID {
	return PageID{uuid: id}
}

func ParsePageID(s string) (PageID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PageID{}, fmt.Errorf("invalid page ID: %w", err)
	}
	return PageID{uuid: id}, nil
}

func (p PageID) UUID() uuid.UUID { return p.uuid }
func (p PageID) String() string  { return p.uuid.String() }
func (p PageID) IsZero() bool    { return p.uuid == uuid.Nil }

func (p PageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.uuid.String())
}

func (p *PageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	p.uuid = id
	return nil
}

func (p PageID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p.uuid.String())
}

func (p *PageID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &p.uuid)
}

func (p PageID) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.uuid.String(), nil
}

func (p *PageID) Scan(value any) error {
	return scanUUID(value, &p.uuid)
}

func (PageID) GormDataType() string { return "uuid" }

// MembershipID is a typed ID for drive memberships
type MembershipID struct {
	uuid uuid.UUID
}

func NewMembershipID() MembershipID {
	return MembershipID{uuid: uuid.New()}
}

func NewMembershipIDFromUUID(id uuid.UUID) MembershipID {
	return MembershipID{uuid: id}
}

func ParseMembershipID(s string) (MembershipID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MembershipID{}, fmt.Errorf("invalid membership ID: %w", err)
	}
	return MembershipID{uuid: id}, nil
}

func (m MembershipID) UUID() uuid.UUID { return m.uuid }
func (m MembershipID) String() string  { return m.uuid.String() }
func (m MembershipID) IsZero() bool    { return m.uuid == uuid.Nil }

func (m MembershipID) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.uuid.String())
}

func (m *MembershipID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	m.uuid = id
	return nil
}

func (m MembershipID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(m.uuid.String())
}

func (m *MembershipID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &m.uuid)
}

func (m MembershipID) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	return m.uuid.String(), nil
}

func (m *MembershipID) Scan(value any) error {
	return scanUUID(value, &m.uuid)
}

func (MembershipID) GormDataType() string { return "uuid" }

// PermissionID is a typed ID for page permissions
type PermissionID struct {
	uuid uuid.UUID
}

func NewPermissionID() PermissionID {
	return PermissionID{uuid: uuid.New()}
}

func NewPermissionIDFromUUID(id uuid.UUID) PermissionID {
	return PermissionID{uuid: id}
}

func ParsePermissionID(s string) (PermissionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PermissionID{}, fmt.Errorf("invalid permission ID: %w", err)
	}
	return PermissionID{uuid: id}, nil
}

func (p PermissionID) UUID() uuid.UUID { return p.uuid }
func (p PermissionID) String() string  { return p.uuid.String() }
func (p PermissionID) IsZero() bool    { return p.uuid == uuid.Nil }

func (p PermissionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.uuid.String())
}

func (p *PermissionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	p.uuid = id
	return nil
}

func (p PermissionID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p.uuid.String())
}

func (p *PermissionID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &p.uuid)
}

func (p PermissionID) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.uuid.String(), nil
}

func (p *PermissionID) Scan(value any) error {
	return scanUUID(value, &p.uuid)
}

func (PermissionID) GormDataType() string { return "uuid" }

// ActivityID is a typed ID for activity log entries
type ActivityID struct {
	uuid uuid.UUID
}

func NewActivityID() ActivityID {
	return ActivityID{uuid: uuid.New()}
}

func NewActivityIDFromUUID(id uuid.UUID) ActivityID {
	return ActivityID{uuid: id}
}

func ParseActivityID(s string) (ActivityID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ActivityID{}, fmt.Errorf("invalid activity ID: %w", err)
	}
	return ActivityID{uuid: id}, nil
}

func (a ActivityID) UUID() uuid.UUID { return a.uuid }
func (a ActivityID) String() string  { return a.uuid.String() }
func (a ActivityID) IsZero() bool    { return a.uuid == uuid.Nil }

func (a ActivityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.uuid.String())
}

func (a *ActivityID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	a.uuid = id
	return nil
}

func (a ActivityID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(a.uuid.String())
}

func (a *ActivityID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORUUID(data, &a.uuid)
}

func (a ActivityID) Value() (driver.Value, error) {
	if a.IsZero() {
		return nil, nil
	}
	return a.uuid.String(), nil
}

func (a *ActivityID) Scan(value any) error {
	return scanUUID(value, &a.uuid)
}

func (ActivityID) GormDataType() string { return "uuid" }

// Helper functions

// scanUUID is a helper for implementing sql.Scanner interface for PostgreSQL/GORM
func scanUUID(value any, target *uuid.UUID) error {
	if value == nil {
		*target = uuid.Nil
		return nil
	}

	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*target = id
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*target = id
	default:
		return fmt.Errorf("cannot scan type %T into UUID", value)
	}
	return nil
}

// unmarshalCBORUUID is a helper for unmarshaling a typed ID that was encoded
// as a plain UUID string. Cached permission entries travel through CBOR, and
// the ID fields are opaque structs, so the codec needs an explicit form.
func unmarshalCBORUUID(data []byte, target *uuid.UUID) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	*target = id
	return nil
}
