/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to
standardize HTTP responses and outbound error events.
*/
package errs

import "net/http"

// errorMap stores the CustomError template corresponding to every application error code.
// The key is the error code (int); the value contains the client-facing message and,
// where the error surfaces over plain HTTP, the status code.
var errorMap = map[int]CustomError{
	// 1xxx: Request Handling and Admission Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many connection attempts. Please try again later.", Status: http.StatusTooManyRequests},
	ErrRouteNotFound:     {Code: ErrRouteNotFound, Message: "Not found.", Status: http.StatusNotFound},

	// 2xxx: Collaboration Business Logic Errors
	ErrNotInRoom:       {Code: ErrNotInRoom, Message: "Join a room before sending collaboration events."},
	ErrInvalidContent:  {Code: ErrInvalidContent, Message: "Content is missing or exceeds the maximum length."},
	ErrCommentTooLong:  {Code: ErrCommentTooLong, Message: "Comment is too long."},
	ErrCommentNotFound: {Code: ErrCommentNotFound, Message: "Comment not found."},

	// 3xxx: Identity and Security Errors
	ErrAuthMissingClaims: {Code: ErrAuthMissingClaims, Message: "Missing identity. User id, name and email are required.", Status: http.StatusUnauthorized},
	ErrAuthInvalidToken:  {Code: ErrAuthInvalidToken, Message: "Invalid or expired identity token.", Status: http.StatusUnauthorized},

	// 5xxx: Internal System Errors
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrPersistenceFailed: {Code: ErrPersistenceFailed, Message: "Saving to the durable store failed.", Status: http.StatusInternalServerError},
}
