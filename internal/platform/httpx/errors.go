// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// ErrorMapping ties a domain error to an HTTP status.
type ErrorMapping struct {
	Target error
	Status int
	Title  string
}

var defaultMappings = []ErrorMapping{
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
}

// RespondError maps err to an RFC7807 response. Handler specific mappings are
// consulted before the defaults; the first match wins.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorMapping) {
	for _, set := range [][]ErrorMapping{mappings, defaultMappings} {
		for _, m := range set {
			if errors.Is(err, m.Target) {
				Problem(w, m.Status, m.Title, err.Error())
				return
			}
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
