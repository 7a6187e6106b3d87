package weather

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("maxdecimals", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		s := strings.TrimSpace(fl.Field().String())
		if i := strings.IndexByte(s, '.'); i >= 0 {
			return len(s)-i-1 <= limit
		}
		return true
	})
	return v
}

// LocationForm is the user-supplied input for creating or updating a location.
// Coordinates are kept as text so range and precision (10 decimal places,
// the stored precision) can both be checked; JSON numbers and numeric
// strings are both accepted.
type LocationForm struct {
	Name      string      `json:"name" form:"name" validate:"max=255"`
	Latitude  json.Number `json:"latitude" form:"latitude" validate:"required,latitude,maxdecimals=10"`
	Longitude json.Number `json:"longitude" form:"longitude" validate:"required,longitude,maxdecimals=10"`
	Timezone  string      `json:"timezone" form:"timezone" validate:"max=255"`
}

// FormErrors maps a form field to a human readable problem.
type FormErrors map[string]string

func (e FormErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, field := range []string{"name", "latitude", "longitude", "timezone"} {
		if msg, ok := e[field]; ok {
			parts = append(parts, field+": "+msg)
		}
	}
	return "invalid location: " + strings.Join(parts, "; ")
}

// Validate checks the form and returns FormErrors on failure.
func (f LocationForm) Validate() error {
	f.Latitude = json.Number(strings.TrimSpace(string(f.Latitude)))
	f.Longitude = json.Number(strings.TrimSpace(string(f.Longitude)))

	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FormErrors, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if _, seen := out[field]; seen {
			continue
		}
		out[field] = fieldMessage(field, fe)
	}
	return out
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "latitude":
		return "latitude must be a decimal number between -90 and 90"
	case "longitude":
		return "longitude must be a decimal number between -180 and 180"
	case "maxdecimals":
		return fmt.Sprintf("ensure that there are no more than %s decimal places", fe.Param())
	case "max":
		return fmt.Sprintf("ensure this value has at most %s characters", fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// Apply validates the form and copies it onto loc.
func (f LocationForm) Apply(loc *Location) error {
	if err := f.Validate(); err != nil {
		return err
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(string(f.Latitude)), 64)
	if err != nil {
		return FormErrors{"latitude": "latitude must be a decimal number between -90 and 90"}
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(string(f.Longitude)), 64)
	if err != nil {
		return FormErrors{"longitude": "longitude must be a decimal number between -180 and 180"}
	}
	loc.Name = strings.TrimSpace(f.Name)
	loc.Latitude = lat
	loc.Longitude = lon
	loc.Timezone = strings.TrimSpace(f.Timezone)
	return nil
}

// FormFromLocation renders loc back into form input.
func FormFromLocation(loc Location) LocationForm {
	return LocationForm{
		Name:      loc.Name,
		Latitude:  json.Number(strconv.FormatFloat(loc.Latitude, 'f', -1, 64)),
		Longitude: json.Number(strconv.FormatFloat(loc.Longitude, 'f', -1, 64)),
		Timezone:  loc.Timezone,
	}
}
