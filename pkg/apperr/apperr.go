package apperr

import (
	"errors"
	"net/http"
)

// Code identifies a recoverable server error condition. Codes are surfaced
// verbatim as the "reason" field of the response envelope, so their spelling
// is part of the wire contract with clients.
type Code string

const (
	MongoError          Code = "MongoError"
	DictionaryNotFound  Code = "DictionaryNotFound"
	InvalidObjectId     Code = "InvalidObjectId"
	PoolNotFound        Code = "PoolNotFound"
	TransferNotFound    Code = "TransferNotFound"
	AlreadyInPool       Code = "AlreadyInPool"
	NotInPool           Code = "NotInPool"
	NotInTransfer       Code = "NotInTransfer"
	EnvVarNotFound      Code = "EnvVarNotFound"
	ParseError          Code = "ParseError"
	InvalidKeyPhrase    Code = "InvalidKeyPhrase"
	EncryptionError     Code = "EncryptionError"
	DecryptionError     Code = "DecryptionError"
	FileNotFound        Code = "FileNotFound"
	HashError           Code = "HashError"
	SseFailedToSend     Code = "SseFailedToSend"
)

// Error pairs a Code with an optional underlying cause. The cause is kept for
// logs only and never leaves the process.
type Error struct {
	Code  Code
	Cause error
}

// New wraps cause with the given code. cause may be nil.
func New(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Cause.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, apperr.New(code, nil)) match on codes.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the Code of err, defaulting to MongoError for anything that
// is not an *Error (unexpected store failures surface as MongoError).
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return MongoError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

// Status maps a Code to its HTTP status.
func (c Code) Status() int {
	switch c {
	case InvalidObjectId, ParseError:
		return http.StatusBadRequest
	case InvalidKeyPhrase:
		return http.StatusUnauthorized
	case PoolNotFound, TransferNotFound, FileNotFound:
		return http.StatusNotFound
	case AlreadyInPool, NotInPool, NotInTransfer:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
