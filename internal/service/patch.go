package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Patches carry the writable fields of a request body. A nil pointer means
// the field was not sent, which matters for partial updates.

type HallPatch struct {
	Name     *string `json:"name"`
	RowCount *int    `json:"row_count"`
	RowSize  *int    `json:"row_size"`
}

type MoviePatch struct {
	Title           *string `json:"title"`
	DurationMinutes *int    `json:"duration_minutes"`
	PremiereYear    NullInt `json:"premiere_year"`
}

type ShowingPatch struct {
	Hall      *uint64          `json:"hall"`
	Movie     *uint64          `json:"movie"`
	StartTime *time.Time       `json:"start_time"`
	Price     *decimal.Decimal `json:"price"`
}

// TicketPatch has no created_at or receipt: both are server-controlled and
// silently dropped when a client sends them.
type TicketPatch struct {
	Showing    *uint64 `json:"showing"`
	Holder     *uint64 `json:"holder"`
	RowNumber  *int    `json:"row_number"`
	SeatNumber *int    `json:"seat_number"`
}

// UserPatch covers sign-up and profile edits. IsAdmin and IsActive are only
// honoured for administrators.
type UserPatch struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsAdmin  *bool   `json:"is_admin"`
	IsActive *bool   `json:"is_active"`
}

// NullInt tells an absent field apart from an explicit null.
type NullInt struct {
	Set   bool
	Value *int
}

func (n *NullInt) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func IntOf(v int) NullInt { return NullInt{Set: true, Value: &v} }

func trimmed(s *string) string { return strings.TrimSpace(*s) }

// mergeUnflagged adds the messages of from for fields that v has not already
// rejected, so a missing field is not also reported as invalid.
func mergeUnflagged(v, from *ValidationError) {
	for f, msgs := range from.Fields {
		if v.Has(f) {
			continue
		}
		for _, m := range msgs {
			v.Add(f, m)
		}
	}
}
