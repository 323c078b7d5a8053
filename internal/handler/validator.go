package handler

import (
	"github.com/moiseenkov/cinema/internal/service"
)

// CustomValidator plugs the service validator into echo so c.Validate reports
// errors keyed by JSON field name, like the services do.
type CustomValidator struct{}

func NewValidator() *CustomValidator {
	return &CustomValidator{}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return service.Check(i)
}
