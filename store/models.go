package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a credential record gating API access. Passwords are stored as
// bcrypt hashes, never plaintext.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Phone is an allocatable resource keyed by its phone number.
type Phone struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	PhoneNumber string    `gorm:"uniqueIndex;not null" json:"phoneNumber"`
	Email       string    `json:"email"`
	Remark      string    `json:"remark"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (p *Phone) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// IP is an allocatable resource keyed by its address, carrying the proxy
// credentials the operators need alongside it.
type IP struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	IPAddress string    `gorm:"column:ip_address;uniqueIndex;not null" json:"ipAddress"`
	Port      string    `json:"port"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Provider  string    `json:"provider"`
	Remark    string    `json:"remark"`
	CreatedAt time.Time `json:"createdAt"`
}

func (ip *IP) BeforeCreate(tx *gorm.DB) error {
	if ip.ID == "" {
		ip.ID = uuid.NewString()
	}
	return nil
}

// Slot is one ledger entry: Count capacity units consumed against exactly one
// resource at UsedAt. Rows are immutable once created; capacity is freed only
// by deletion or by aging out of the window at read time.
//
// Count is nullable because rows predating the column exist in the wild; a
// NULL count reads as 1. The composite (resource, used_at) indexes keep the
// usage aggregate a single indexed query.
type Slot struct {
	ID      string    `gorm:"primaryKey" json:"id"`
	PhoneID *string   `gorm:"index:idx_slots_phone_used,priority:1" json:"phoneId"`
	IPID    *string   `gorm:"column:ip_id;index:idx_slots_ip_used,priority:1" json:"ipId"`
	Count   *int      `json:"count"`
	UsedAt  time.Time `gorm:"not null;index:idx_slots_phone_used,priority:2;index:idx_slots_ip_used,priority:2" json:"usedAt"`

	Phone *Phone `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	IP    *IP    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Units returns the capacity consumed by this slot, defaulting legacy NULL
// counts to 1.
func (s *Slot) Units() int {
	if s.Count == nil {
		return 1
	}
	return *s.Count
}
