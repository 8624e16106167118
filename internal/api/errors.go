package api

import (
	"errors"
	"net/http"
	"strings"

	"mbook/internal/util"

	"github.com/go-playground/validator/v10"
)

// requestError is a client error whose message is returned verbatim.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func newValidator() *validator.Validate {
	v := validator.New()
	// title and author become directory names under the upload root
	_ = v.RegisterValidation("pathsegment", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "." && s != ".." && !strings.ContainsAny(s, `/\`+"\x00")
	})
	return v
}

func formError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() != "required" {
				return badRequest("Invalid book title or author")
			}
		}
	}
	return badRequest("Incomplete form")
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "MB-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "no such table"), strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "MB-DB-5001",
				Message: "Ledger schema is not initialized. Restart the service and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "MB-DB-5002",
				Message: "Ledger or workflow service is unavailable. Check local services and retry.",
			}
		case strings.Contains(raw, "start conversion"):
			return apiError{
				Code:    "MB-API-5010",
				Message: "Book was stored but its conversion could not be started.",
			}
		default:
			return apiError{
				Code:    "MB-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "MB-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "MB-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "MB-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusRequestEntityTooLarge:
		code = "MB-API-4013"
		msg = "Upload is too large."
	}

	var reqErr *requestError
	switch {
	case status < 400 || status >= 500:
	case errors.As(err, &reqErr):
		msg = reqErr.msg
	case errors.Is(err, util.ErrBookExists):
		msg = "Book already exists"
	}
	return apiError{Code: code, Message: msg}
}
