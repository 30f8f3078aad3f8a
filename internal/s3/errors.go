package s3

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
)

var (
	// ErrObjectNotFound is returned when a key or bucket does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrBadRequest is returned when the store rejected the request as malformed.
	ErrBadRequest = errors.New("bad request")
)

type httpStatusError interface {
	HTTPStatusCode() int
}

func statusCode(err error) int {
	var se httpStatusError
	if errors.As(err, &se) {
		return se.HTTPStatusCode()
	}
	return 0
}

// IsNotFound reports whether err is a "does not exist" answer from the store.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}
	if statusCode(err) == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}

// IsBadRequest reports whether err is an HTTP 400 answer from the store.
func IsBadRequest(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBadRequest) {
		return true
	}
	if statusCode(err) == http.StatusBadRequest {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "400" || apiErr.ErrorCode() == "BadRequest"
	}
	return false
}

// classify tags err with ErrObjectNotFound or ErrBadRequest so callers can
// use errors.Is without knowing about the SDK error types.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case IsBadRequest(err):
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	default:
		return err
	}
}

// FormatError formats an error message with context
func FormatError(operation, resource string, err error) string {
	if err == nil {
		return ""
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Access Denied") {
		return fmt.Sprintf("%s failed for %s: Access Denied - check IAM permissions", operation, resource)
	}
	if strings.Contains(errMsg, "NoSuchBucket") {
		return fmt.Sprintf("%s failed for %s: Bucket does not exist or is in a different region", operation, resource)
	}
	if strings.Contains(errMsg, "RequestLimitExceeded") || strings.Contains(errMsg, "SlowDown") {
		return fmt.Sprintf("%s failed for %s: Rate limit exceeded - try again later", operation, resource)
	}

	return fmt.Sprintf("%s failed for %s: %s", operation, resource, errMsg)
}
