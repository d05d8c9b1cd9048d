package domain

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

const (
	// TrackingKeyPrefix namespaces tracking records in the store.
	TrackingKeyPrefix = "tracking:"

	// TrackingTTL is the retention window applied on every record write.
	TrackingTTL = 7 * 24 * time.Hour

	// RecordDelimiter separates the encoded record fields. Field order and
	// delimiter are fixed: outstanding tracking ids depend on them.
	RecordDelimiter = "|"

	recordFieldCount = 4
	recordTimeLayout = time.RFC3339Nano
)

// TrackingRecord is the open-state of one (recipient, send) pair.
type TrackingRecord struct {
	TrackingID   string
	Email        string
	OpenCount    int
	CreatedAt    time.Time
	LastOpenedAt time.Time
}

// NewTrackingRecord returns a record that has not been opened yet.
func NewTrackingRecord(trackingID string, email string, now time.Time) TrackingRecord {
	createdAt := now.UTC()
	return TrackingRecord{
		TrackingID:   trackingID,
		Email:        email,
		OpenCount:    0,
		CreatedAt:    createdAt,
		LastOpenedAt: createdAt,
	}
}

// TrackingKey returns the store key for a tracking id, e.g. tracking:<id>.
func TrackingKey(trackingID string) string {
	return TrackingKeyPrefix + trackingID
}

// EncodeRecord serializes r as email|count|createdAt|lastOpenedAt.
// The tracking id is carried by the key and is not part of the value.
func EncodeRecord(r TrackingRecord) string {
	return strings.Join([]string{
		r.Email,
		strconv.Itoa(r.OpenCount),
		r.CreatedAt.UTC().Format(recordTimeLayout),
		r.LastOpenedAt.UTC().Format(recordTimeLayout),
	}, RecordDelimiter)
}

// DecodeRecord parses a value produced by EncodeRecord.
//
// A wrong field count or an unparseable timestamp yields ErrMalformedRecord.
// A count that is not a non-negative integer yields ErrInvalidCount together
// with the remaining fields decoded and OpenCount set to 0, so callers can
// choose their own substitute.
func DecodeRecord(trackingID string, raw string) (TrackingRecord, error) {
	parts := strings.Split(raw, RecordDelimiter)
	if len(parts) != recordFieldCount {
		return TrackingRecord{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedRecord, recordFieldCount, len(parts))
	}

	createdAt, err := time.Parse(recordTimeLayout, parts[2])
	if err != nil {
		return TrackingRecord{}, fmt.Errorf("%w: invalid createdAt %q", ErrMalformedRecord, parts[2])
	}
	lastOpenedAt, err := time.Parse(recordTimeLayout, parts[3])
	if err != nil {
		return TrackingRecord{}, fmt.Errorf("%w: invalid lastOpenedAt %q", ErrMalformedRecord, parts[3])
	}

	record := TrackingRecord{
		TrackingID:   trackingID,
		Email:        parts[0],
		CreatedAt:    createdAt.UTC(),
		LastOpenedAt: lastOpenedAt.UTC(),
	}

	count, err := strconv.Atoi(parts[1])
	if err != nil || count < 0 {
		return record, fmt.Errorf("%w: %q", ErrInvalidCount, parts[1])
	}
	record.OpenCount = count

	return record, nil
}

// ValidateRecipientEmail rejects addresses that cannot be stored in a record.
func ValidateRecipientEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: recipient email is required", ErrValidation)
	}
	if strings.Contains(email, RecordDelimiter) {
		return fmt.Errorf("%w: recipient email must not contain %q", ErrValidation, RecordDelimiter)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid recipient email %q", ErrValidation, email)
	}
	return nil
}
