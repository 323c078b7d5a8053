package model

// Hall represents a screening room. Its seating is a plain grid of RowCount
// rows with RowSize seats each; tickets address a seat by (row, seat).
//
// Fields:
//  ID       – primary key identifier.
//  Name     – unique hall name.
//  RowCount – number of seating rows.
//  RowSize  – number of seats per row.
type Hall struct {
	ID       uint64 `json:"id"`                               // halls.id
	Name     string `json:"name" validate:"required,max=32"`  // halls.name
	RowCount int    `json:"row_count" validate:"min=1"`       // halls.row_count
	RowSize  int    `json:"row_size" validate:"min=1"`        // halls.row_size
}

// SeatCount is the capacity of the hall.
func (h Hall) SeatCount() int {
	return h.RowCount * h.RowSize
}
