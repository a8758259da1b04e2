package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"risparmi/internal/core"
)

const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object into dst. Unknown fields and
// trailing data are rejected. Returns nil on success.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *JSONResponseBuilder {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return ErrorResponse(http.StatusRequestEntityTooLarge, "BadRequest", "request body too large")
		case errors.Is(err, io.EOF):
			return BadRequestError("request body is empty")
		default:
			return BadRequestError("invalid JSON body: " + err.Error())
		}
	}
	if dec.More() {
		return BadRequestError("request body must contain a single JSON object")
	}
	return nil
}

// parseAmount parses a required, strictly positive amount such as "12.50".
func parseAmount(field, s string) (core.Money, *JSONResponseBuilder) {
	m, err := core.ParseMoney(s)
	if err != nil {
		return core.Money{}, ErrorResponse(http.StatusUnprocessableEntity, "InvalidAmount",
			fmt.Sprintf("%s: invalid amount %q", field, s))
	}
	return m, nil
}

// parseOptionalAmount is parseAmount where "" and "0" mean zero.
func parseOptionalAmount(field, s string) (core.Money, *JSONResponseBuilder) {
	switch strings.TrimSpace(s) {
	case "", "0", "0.00":
		return core.Money{}, nil
	}
	return parseAmount(field, s)
}

// parseOptionalDate parses YYYY-MM-DD, the zero date for "".
func parseOptionalDate(field, s string) (core.Date, *JSONResponseBuilder) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, UnprocessableEntityError(fmt.Sprintf("%s: expected YYYY-MM-DD, got %q", field, s))
	}
	return d, nil
}

// parseBoolQuery reads an optional boolean query parameter, false when absent.
func parseBoolQuery(q url.Values, name string) (bool, *JSONResponseBuilder) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, BadRequestError(fmt.Sprintf("%s: invalid boolean %q", name, v))
	}
	return b, nil
}

// floatParam bounds a numeric query parameter.
type floatParam struct {
	name     string
	def      float64
	required bool
	min, max float64
}

// parseFloatQuery reads a finite number within [p.min, p.max]. Commas are
// accepted as decimal separators.
func parseFloatQuery(q url.Values, p floatParam) (float64, *JSONResponseBuilder) {
	v := strings.TrimSpace(q.Get(p.name))
	if v == "" {
		if p.required {
			return 0, UnprocessableEntityError(p.name + " is required")
		}
		return p.def, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, UnprocessableEntityError(fmt.Sprintf("%s: invalid number %q", p.name, v))
	}
	if f < p.min || f > p.max {
		return 0, UnprocessableEntityError(fmt.Sprintf("%s: must be between %g and %g", p.name, p.min, p.max))
	}
	return f, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// optionalString sanitizes a patch field, keeping nil as "unchanged".
func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
