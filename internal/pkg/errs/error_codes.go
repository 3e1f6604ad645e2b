/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system failures both internally
within the server and in error events sent to collaboration clients.
*/
package errs

// 1xxx: Request Handling and Admission Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the connection rate of the user or IP exceeded the limit.
	ErrRateLimitExceeded = 1002

	// ErrRouteNotFound indicates the requested HTTP path does not exist.
	ErrRouteNotFound = 1003
)

// 2xxx: Collaboration Business Logic Errors
const (
	// ErrNotInRoom indicates an event requiring room membership was sent by a session with no active room.
	ErrNotInRoom = 2001

	// ErrInvalidContent indicates submitted document content was missing or exceeded the maximum length.
	ErrInvalidContent = 2002

	// ErrCommentTooLong indicates a comment body exceeded the maximum length.
	ErrCommentTooLong = 2101

	// ErrCommentNotFound indicates the referenced comment id does not exist in the room.
	ErrCommentNotFound = 2102
)

// 3xxx: Identity and Security Errors
const (
	// ErrAuthMissingClaims indicates a required identity claim (user id, name, email) was absent at connect time.
	ErrAuthMissingClaims = 3001

	// ErrAuthInvalidToken indicates the presented identity token failed signature or expiry validation.
	ErrAuthInvalidToken = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000

	// ErrPersistenceFailed indicates a durable-store call failed. Never surfaced to clients;
	// used for logging and the error counter only.
	ErrPersistenceFailed = 5001
)
