// Package errors provides the coded error type shared by the vault engine,
// its stores and its transports.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation marks a rejected input, e.g. an empty task title.
	CodeValidation Code = "VALIDATION"
	// CodeNotFound marks an operation on a missing id. Callers treat it as a
	// benign no-op.
	CodeNotFound Code = "NOT_FOUND"
	// CodeRewardParse marks a reward that is not a non-negative finite amount.
	CodeRewardParse Code = "REWARD_PARSE"
	// CodeRemote marks a failure of the balance store or the text generator.
	CodeRemote Code = "REMOTE"
	// CodeInvalidTransition marks a role gate transition that is not allowed.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	// CodeForbidden marks an action the current role may not perform.
	CodeForbidden Code = "FORBIDDEN"
	// CodeUnauthenticated marks a request without a live session.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// HTTPStatus maps a code to the status the HTTP API answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeRewardParse, CodeInvalidTransition:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
