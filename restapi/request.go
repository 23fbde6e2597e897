/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"code.cloudfoundry.org/bytefmt"
)

// RequestBodyTooLargeError is returned when more bytes than the limit set by SetRequestMaxBodySize
// are read from the request body.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

// Error returns a string representation of RequestBodyTooLargeError.
func (e *RequestBodyTooLargeError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying *http.MaxBytesError.
func (e *RequestBodyTooLargeError) Unwrap() error {
	return e.Err
}

type maxBytesReader struct {
	io.ReadCloser
	n uint64
}

func (r *maxBytesReader) Read(p []byte) (n int, err error) {
	n, err = r.ReadCloser.Read(p)
	var maxBytesErr *http.MaxBytesError
	if err != nil && errors.As(err, &maxBytesErr) {
		err = &RequestBodyTooLargeError{r.n, err}
	}
	return
}

// SetRequestMaxBodySize wraps request body with a reader which limit the number of bytes to read.
// RequestBodyTooLargeError will be returned when maxSizeBytes is exceeded.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &maxBytesReader{ReadCloser: http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)), n: maxSizeBytes} //nolint:gosec
}

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// DecodeRequestJSON reads a single JSON object from the request body into dst.
// Errors caused by the client are returned as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("failed to parse Content-Type header for request: %s", err),
			}
		}
		if contentType != ContentTypeAppJSON {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Content-Type %q is not supported.", contentType),
			}
		}
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalTypeErr *json.UnmarshalTypeError
		var tooLargeErr *RequestBodyTooLargeError
		switch {
		case errors.Is(err, io.EOF):
			return &MalformedRequestError{http.StatusBadRequest, "Request body must not be empty."}
		case errors.Is(err, io.ErrUnexpectedEOF):
			return &MalformedRequestError{http.StatusBadRequest, "Request body contains badly-formed JSON."}
		case errors.As(err, &syntaxErr):
			return &MalformedRequestError{
				http.StatusBadRequest,
				fmt.Sprintf("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset),
			}
		case errors.As(err, &unmarshalTypeErr):
			return &MalformedRequestError{
				http.StatusBadRequest,
				fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d).",
					unmarshalTypeErr.Field, unmarshalTypeErr.Offset),
			}
		case errors.As(err, &tooLargeErr):
			return NewTooLargeMalformedRequestError(tooLargeErr.MaxSizeBytes)
		default:
			return err
		}
	}

	if decoder.More() {
		return &MalformedRequestError{http.StatusBadRequest, "Request body must only contain a single JSON object."}
	}
	return nil
}
