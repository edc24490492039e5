package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/model"
)

// maxBodyBytes caps request bodies. Every request is a handful of short
// strings.
const maxBodyBytes = 64 << 10

const (
	msgInvalidBody   = "Request body must be a JSON object."
	msgInvalidRating = `Rating must be a number between 0 and 10 or "Not Watched Yet".`
)

// requestValidator checks decoded request structs against their `validate`
// tags. Field names in messages are the JSON names.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// decode reads the JSON body into dst and validates it. requiredMsg is the
// client message for a missing required field.
func (v *requestValidator) decode(w http.ResponseWriter, r *http.Request, dst any, requiredMsg string) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		if errors.Is(err, model.ErrInvalidRating) {
			return apperror.ValidationFailed("rating", msgInvalidRating)
		}
		return apperror.ValidationFailed("", msgInvalidBody)
	}
	return v.check(dst, requiredMsg)
}

func (v *requestValidator) check(req any, requiredMsg string) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("handler: validating %T: %w", req, err)
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return apperror.ValidationFailed(fe.Field(), requiredMsg)
		}
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "email":
		return apperror.ValidationFailed(fe.Field(), "Email must be a valid email address.")
	case "max":
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param()))
	}
	return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s is invalid.", fe.Field()))
}
