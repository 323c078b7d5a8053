package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Showing is a scheduled screening of a movie in a hall at a given price.
//
// Fields:
//  ID                   – primary key identifier.
//  HallID               – hall where the showing takes place.
//  MovieID              – movie being shown.
//  StartTime            – start of the screening, stored in UTC.
//  Price                – price of one seat.
//  MovieDurationMinutes – read-only, joined from movies.duration_minutes;
//                         the scheduler uses it to compute when the hall frees up.
type Showing struct {
	ID                   uint64          `json:"id"`                             // showings.id
	HallID               uint64          `json:"hall" validate:"required"`       // showings.hall_id
	MovieID              uint64          `json:"movie" validate:"required"`      // showings.movie_id
	StartTime            time.Time       `json:"start_time" validate:"required"` // showings.start_time
	Price                decimal.Decimal `json:"price"`                          // showings.price
	MovieDurationMinutes int             `json:"-"`                              // movies.duration_minutes
}

// EndsAt is when the screening itself finishes, without service time.
func (s Showing) EndsAt() time.Time {
	return s.StartTime.Add(time.Duration(s.MovieDurationMinutes) * time.Minute)
}
