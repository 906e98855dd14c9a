package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/catalystforge/subtitle-worker/log"
)

type APIError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHttpError(w http.ResponseWriter, msg string, status int, err error) APIError {
	w.WriteHeader(status)

	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); err != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}
	return APIError{msg, status, err}
}

// HTTP Errors
func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusUnauthorized, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusBadRequest, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusInternalServerError, err)
}

// Unretriable wraps an error to mark it as not worth retrying. Nothing in
// the pipeline produces one, and the retry controller does not check for
// it: every pipeline failure, including a transcription or blob-I/O
// failure, goes through the normal retry counter.
type UnretriableError struct{ error }

func Unretriable(err error) error {
	return UnretriableError{err}
}

func (e UnretriableError) Unwrap() error {
	return e.error
}

// IsUnretriable returns whether the given error is an unretriable error.
func IsUnretriable(err error) bool {
	return errors.As(err, &UnretriableError{})
}

type ObjectNotFoundError struct {
	msg   string
	cause error
}

func (e ObjectNotFoundError) Error() string {
	return e.msg
}

func (e ObjectNotFoundError) Unwrap() error {
	return e.cause
}

func NewObjectNotFoundError(msg string, cause error) error {
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return ObjectNotFoundError{msg: msg, cause: cause}
}

// IsObjectNotFound checks if the error is an ObjectNotFoundError.
func IsObjectNotFound(err error) bool {
	return errors.As(err, &ObjectNotFoundError{})
}
