package handler

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a validator with the "day" tag registered for
// YYYY-MM-DD strings.
func NewValidator() *Validator {
	v := validator.New()
	// Date fields arrive as strings; check the format before the engine sees them.
	err := v.RegisterValidation("day", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := model.ParseDay(s)
		return err == nil
	})
	if err != nil {
		panic("register day validation: " + err.Error())
	}
	return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error {
	return cv.v.Struct(i)
}

func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

// days parses a start/end pair.  An empty end means the same day.
func days(start, end string) (time.Time, time.Time, error) {
	s, err := model.ParseDay(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if strings.TrimSpace(end) == "" {
		return s, s, nil
	}
	e, err := model.ParseDay(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return s, e, nil
}
