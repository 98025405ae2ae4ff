package ask

import (
	"errors"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/mentorpal/askload/internal/load"
)

// Check names reported for every validated response.
const (
	CheckStatus   = "is status 200"
	CheckNoErrors = "has no errors"
)

// ErrUnexpectedBody is returned for a 200 response whose body is not a
// JSON object or array.
var ErrUnexpectedBody = errors.New("unexpected response body: not a JSON object or array")

// Outcome holds the check results for one response.
type Outcome struct {
	StatusOK bool

	// BodyChecked is false when the body was not inspected, either because
	// the status was not 200 or because the body was not a JSON object or
	// array.
	BodyChecked bool
	NoErrors    bool

	Err error
}

// Failed reports whether the response should be logged as a failure.
func (o Outcome) Failed() bool {
	return !o.StatusOK
}

// Validate evaluates the response checks. A nil response is treated as a
// transport failure.
func Validate(resp *load.Response) Outcome {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return Outcome{}
	}

	out := Outcome{StatusOK: true}
	if !gjson.ValidBytes(resp.Body) {
		out.Err = ErrUnexpectedBody
		return out
	}
	doc := gjson.ParseBytes(resp.Body)
	switch {
	case doc.IsObject():
		out.BodyChecked = true
		out.NoErrors = !doc.Get("errors").Exists()
	case doc.IsArray():
		// An array has indexes, never an errors field.
		out.BodyChecked = true
		out.NoErrors = true
	default:
		out.Err = ErrUnexpectedBody
	}
	return out
}

// Report records the outcome's checks on vu and returns its error.
func (o Outcome) Report(vu load.VU) error {
	vu.Check(CheckStatus, o.StatusOK)
	if o.BodyChecked {
		vu.Check(CheckNoErrors, o.NoErrors)
	}
	return o.Err
}
