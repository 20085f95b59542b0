package qdrant

import (
	"errors"
	"fmt"
	"net/http"
)

type OperationErrorCode string

const (
	CodeEncodeFailed    OperationErrorCode = "encode_failed"
	CodeDecodeFailed    OperationErrorCode = "decode_failed"
	CodeTransportFailed OperationErrorCode = "transport_failed"
	CodeTimeout         OperationErrorCode = "timeout"
	CodeQueryFailed     OperationErrorCode = "query_failed"
)

// OperationError describes a failed call to Qdrant.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Cause      error
}

func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("qdrant operation failed (op=%s code=%s status=%d): %v", e.Operation, e.Code, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("qdrant operation failed (op=%s code=%s status=%d)", e.Operation, e.Code, e.StatusCode)
}

func (e *OperationError) Unwrap() error { return e.Cause }

func opErr(op string, code OperationErrorCode, status int, cause error) error {
	return &OperationError{Code: code, Operation: op, StatusCode: status, Cause: cause}
}

func isNotFound(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.StatusCode == http.StatusNotFound
}
