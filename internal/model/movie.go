package model

// Movie is a film that can be scheduled. PremiereYear is optional; when set,
// no showing may be placed before that year. DurationMinutes is capped at one
// day, which keeps every showing's end time representable.
type Movie struct {
	ID              uint64 `json:"id"`                                          // movies.id
	Title           string `json:"title" validate:"required,max=128"`           // movies.title
	DurationMinutes int    `json:"duration_minutes" validate:"min=1,max=1440"`  // movies.duration_minutes
	PremiereYear    *int   `json:"premiere_year" validate:"omitempty,min=1896"` // movies.premiere_year (nullable)
}
