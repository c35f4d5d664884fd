package groupme

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrNotModified is returned when the platform answers with a 3xx code,
// meaning it had no new data to return.
var ErrNotModified = errors.New("no new data")

var statusMessages = map[int]string{
	200: "Success!",
	201: "Resource was created successfully.",
	204: "Resource was deleted successfully.",
	304: "There was no new data to return.",
	400: "Returned when an invalid format or invalid data is specified in the request.",
	401: "Authentication credentials were missing or incorrect.",
	403: "The request is understood, but it has been refused.",
	404: "The URI requested is invalid or the resource requested, such as a user, does not exists.",
	420: "You are being rate limited. Chill the heck out.",
	500: "Something unexpected occurred. GroupMe will be notified.",
	502: "GroupMe is down or being upgraded.",
	503: "The GroupMe servers are up, but overloaded with requests. Try again later.",
}

// StatusMessage describes a platform status code.
func StatusMessage(code int) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	return "Unknown status code"
}

// APIError is a failed platform call.
type APIError struct {
	Code        int
	Description string
	Errors      []string
	Body        string
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 && e.Body != "" {
		return fmt.Sprintf("%d %s %s", e.Code, e.Description, e.Body)
	}
	return fmt.Sprintf("%d %s %v", e.Code, e.Description, e.Errors)
}

func newAPIError(code int, body []byte) *APIError {
	var msgs []string
	for _, m := range gjson.GetBytes(body, "meta.errors").Array() {
		msgs = append(msgs, m.String())
	}
	return &APIError{
		Code:        code,
		Description: StatusMessage(code),
		Errors:      msgs,
		Body:        string(body),
	}
}
