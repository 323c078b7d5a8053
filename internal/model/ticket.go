package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is a claim on one seat of one showing. A non-empty Receipt means the
// ticket has been paid; paid tickets can no longer change or be removed.
//
// Fields:
//  ID         – primary key identifier.
//  ShowingID  – showing the seat belongs to.
//  HolderID   – user the ticket was booked for.
//  CreatedAt  – server-side booking time.
//  RowNumber  – 1-based row, at most hall.row_count.
//  SeatNumber – 1-based seat in the row, at most hall.row_size.
//  Receipt    – payment token once payment is confirmed, empty before.
//  Price      – read-only, joined from showings.price.
type Ticket struct {
	ID         uint64          `json:"id"`                             // tickets.id
	ShowingID  uint64          `json:"showing" validate:"required"`    // tickets.showing_id
	HolderID   uint64          `json:"holder" validate:"required"`     // tickets.holder_id
	CreatedAt  time.Time       `json:"created_at"`                     // tickets.created_at
	RowNumber  int             `json:"row_number" validate:"min=1"`    // tickets.seat_row
	SeatNumber int             `json:"seat_number" validate:"min=1"`   // tickets.seat_number
	Receipt    string          `json:"receipt"`                        // tickets.receipt
	Price      decimal.Decimal `json:"price"`                          // showings.price
}

// Paid reports whether a receipt has been recorded.
func (t Ticket) Paid() bool {
	return t.Receipt != ""
}
