// Package domain defines the persistence models for booking drafts, deposit
// payments, bookings and the service catalog. These types are mapped with
// GORM and form the core data layer of the booking engine.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Draft workflow steps. A draft's step names the next field to collect, or
// StepReady once every required field is present.
const (
	StepCollectService        = "collect_service"
	StepCollectDate           = "collect_date"
	StepCollectTime           = "collect_time"
	StepCollectName           = "collect_name"
	StepCollectRecipientName  = "collect_recipient_name"
	StepCollectRecipientPhone = "collect_recipient_phone"
	StepReady                 = "ready"
)

// Draft field names as reported by missing-field checks.
const (
	FieldService        = "service"
	FieldDate           = "date"
	FieldTime           = "time"
	FieldName           = "name"
	FieldRecipientName  = "recipient_name"
	FieldRecipientPhone = "recipient_phone"
)

// Draft is a customer's in-progress booking request. There is at most one
// live draft per customer; it is only ever changed through a merge, which
// bumps Version.
//
// Date and Time keep the raw text the customer supplied. StartsAt is the
// derived UTC instant and stays nil while the pair cannot be normalized.
type Draft struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	CustomerID     string     `json:"customer_id"     gorm:"type:varchar(64);not null;uniqueIndex:ux_drafts_customer"`
	Service        string     `json:"service"         gorm:"type:varchar(120)"`
	Date           string     `json:"date"            gorm:"type:varchar(64)"`
	Time           string     `json:"time"            gorm:"type:varchar(32)"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	CustomerName   string     `json:"customer_name"   gorm:"type:varchar(120)"`
	RecipientName  string     `json:"recipient_name"  gorm:"type:varchar(120)"`
	RecipientPhone string     `json:"recipient_phone" gorm:"type:varchar(32)"`
	ForSomeoneElse bool       `json:"for_someone_else" gorm:"not null;default:false"`
	PayerPhone     string     `json:"payer_phone,omitempty" gorm:"type:varchar(32)"`
	Step           string     `json:"step"            gorm:"type:varchar(32);not null;default:'collect_service'"`
	Version        int64      `json:"version"         gorm:"not null;default:1"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"      gorm:"index"`
}

// TableName returns the database table name for Draft.
func (Draft) TableName() string { return "drafts" }

// Snapshot copies the booking-relevant fields of d.
func (d Draft) Snapshot() DraftSnapshot {
	return DraftSnapshot{
		CustomerID:     d.CustomerID,
		Service:        d.Service,
		Date:           d.Date,
		Time:           d.Time,
		StartsAt:       d.StartsAt,
		CustomerName:   d.CustomerName,
		RecipientName:  d.RecipientName,
		RecipientPhone: d.RecipientPhone,
		ForSomeoneElse: d.ForSomeoneElse,
	}
}

// DraftSnapshot is the draft state captured on every payment attempt, so a
// paid or resent deposit can still be turned into a booking after the draft
// row itself is gone.
type DraftSnapshot struct {
	CustomerID     string     `json:"customer_id"`
	Service        string     `json:"service"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	CustomerName   string     `json:"customer_name"`
	RecipientName  string     `json:"recipient_name"`
	RecipientPhone string     `json:"recipient_phone"`
	ForSomeoneElse bool       `json:"for_someone_else"`
}

// Equal reports whether both snapshots describe the same booking.
func (s DraftSnapshot) Equal(o DraftSnapshot) bool {
	sa, oa := s.StartsAt, o.StartsAt
	s.StartsAt, o.StartsAt = nil, nil
	if s != o {
		return false
	}
	if sa == nil || oa == nil {
		return sa == oa
	}
	return sa.Equal(*oa)
}

// Value stores the snapshot as a JSON document.
func (s DraftSnapshot) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a JSON document written by Value.
func (s *DraftSnapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = DraftSnapshot{}
		return nil
	case string:
		if v == "" {
			*s = DraftSnapshot{}
			return nil
		}
		return json.Unmarshal([]byte(v), s)
	case []byte:
		if len(v) == 0 {
			*s = DraftSnapshot{}
			return nil
		}
		return json.Unmarshal(v, s)
	default:
		return fmt.Errorf("draft snapshot: unsupported column type %T", src)
	}
}

// Payment statuses.
const (
	PaymentPending = "pending"
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

// Payment is one deposit attempt for a draft. Only the most recent row per
// draft is authoritative; older rows are history.
//
// PendingKey and SuccessKey hold the draft id while the row is pending or
// successful respectively, and are NULL otherwise. Their unique indexes make
// the store itself refuse a second pending or a second successful row for the
// same draft. ReceiptCode is unique so a receipt can never be attached to two
// payments.
type Payment struct {
	ID            string        `json:"id"             gorm:"type:char(36);primaryKey"`
	DraftID       string        `json:"draft_id"       gorm:"type:char(36);not null;index:idx_payments_draft,priority:1"`
	CustomerID    string        `json:"customer_id"    gorm:"type:varchar(64);not null;index"`
	Amount        int64         `json:"amount"         gorm:"not null"`
	Phone         string        `json:"phone"          gorm:"type:varchar(32);not null"`
	Status        string        `json:"status"         gorm:"type:varchar(16);not null;check:status IN ('pending','success','failed')"`
	CorrelationID *string       `json:"correlation_id,omitempty" gorm:"type:varchar(128);uniqueIndex"`
	ReceiptCode   *string       `json:"receipt_code,omitempty"   gorm:"type:varchar(32);uniqueIndex"`
	PendingKey    *string       `json:"-"              gorm:"type:char(36);uniqueIndex"`
	SuccessKey    *string       `json:"-"              gorm:"type:char(36);uniqueIndex"`
	PushStartedAt *time.Time    `json:"-"`
	FailureReason string        `json:"failure_reason,omitempty" gorm:"type:varchar(255)"`
	Snapshot      DraftSnapshot `json:"-"              gorm:"type:text"`
	CreatedAt     time.Time     `json:"created_at"     gorm:"index:idx_payments_draft,priority:2"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

// Booking statuses.
const (
	BookingProvisional = "provisional"
	BookingConfirmed   = "confirmed"
	BookingCancelled   = "cancelled"
)

// Booking is a scheduled appointment occupying [StartsAt, EndsAt).
// No two confirmed bookings may overlap.
type Booking struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	CustomerID     string    `json:"customer_id"     gorm:"type:varchar(64);not null;index"`
	Service        string    `json:"service"         gorm:"type:varchar(120);not null"`
	StartsAt       time.Time `json:"starts_at"       gorm:"not null;index:idx_bookings_window,priority:2"`
	EndsAt         time.Time `json:"ends_at"         gorm:"not null"`
	DurationMin    int       `json:"duration_min"    gorm:"not null"`
	Status         string    `json:"status"          gorm:"type:varchar(16);not null;index:idx_bookings_window,priority:1;check:status IN ('provisional','confirmed','cancelled')"`
	RecipientName  string    `json:"recipient_name"  gorm:"type:varchar(120)"`
	RecipientPhone string    `json:"recipient_phone" gorm:"type:varchar(32)"`
	PaymentID      *string   `json:"payment_id,omitempty" gorm:"type:char(36);uniqueIndex"`
	DraftID        string    `json:"draft_id,omitempty"   gorm:"type:char(36)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for Booking.
func (Booking) TableName() string { return "bookings" }

// Overlaps reports whether b's interval intersects [start, end).
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartsAt.Before(end) && start.Before(b.EndsAt)
}

// Service is a bookable package from the read-only catalog. Amounts are in
// whole currency units.
type Service struct {
	ID           string `json:"id"            gorm:"type:char(36);primaryKey"`
	Name         string `json:"name"          gorm:"type:varchar(120);not null;uniqueIndex"`
	DurationText string `json:"duration_text" gorm:"type:varchar(64)"`
	DurationMin  int    `json:"duration_min"  gorm:"not null"`
	Price        int64  `json:"price"         gorm:"not null"`
	Deposit      int64  `json:"deposit"       gorm:"not null"`
}

// TableName returns the database table name for Service.
func (Service) TableName() string { return "services" }

// DayLock is a per-calendar-day row written at the start of every
// confirmation transaction. Writing it first serializes concurrent
// confirmations for the same day on both SQLite and Postgres.
type DayLock struct {
	Day       string    `gorm:"type:varchar(10);primaryKey"`
	Seq       int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for DayLock.
func (DayLock) TableName() string { return "booking_day_locks" }
