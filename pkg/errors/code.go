package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Identity errors
// 16000-16999: Permission errors
// 17000-17999: Help queue errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Storage errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103
	StoreUnavailable    ErrorCode = 10104

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Identity Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Permission Errors (16000-16999) ==========

	PermissionDenied       ErrorCode = 16000
	InsufficientPermission ErrorCode = 16001
	RoleNotFound           ErrorCode = 16002
	InvalidRole            ErrorCode = 16003

	// ========== Help Queue Errors (17000-17999) ==========

	// Lookup (17000-17049)
	RequestNotFound ErrorCode = 17000
	CourseNotFound  ErrorCode = 17001

	// Policy (17050-17099)
	NotCourseMember     ErrorCode = 17050
	TransitionForbidden ErrorCode = 17051
	RequestClosed       ErrorCode = 17052

	// Lifecycle (17100-17199)
	InvalidStatus     ErrorCode = 17100
	StatusConflict    ErrorCode = 17101
	NoEligibleRequest ErrorCode = 17102
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Storage
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",
	StoreUnavailable:    "Storage temporarily unavailable",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Identity
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Permission
	PermissionDenied:       "Permission denied",
	InsufficientPermission: "Insufficient permission",
	RoleNotFound:           "Role not found",
	InvalidRole:            "Invalid role",

	// Help queue
	RequestNotFound:     "Request not found",
	CourseNotFound:      "Course not found",
	NotCourseMember:     "Not a member of this course",
	TransitionForbidden: "Status transition not allowed",
	RequestClosed:       "Request is closed",
	InvalidStatus:       "Unknown request status",
	StatusConflict:      "Request status changed concurrently",
	NoEligibleRequest:   "No request is waiting to be claimed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden, c >= 16000 && c < 16100: // Permission errors
		return 403
	case c >= 17050 && c < 17100: // Queue policy errors
		return 403
	case c == NotFound, c == RecordNotFound, c == RequestNotFound, c == CourseNotFound:
		return 404
	case c == StatusConflict, c == RecordAlreadyExists:
		return 409
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == InvalidStatus, c == NoEligibleRequest:
		return 400
	default:
		return 500
	}
}

// IsClientError reports whether the code describes a caller mistake rather than a server fault.
func (c ErrorCode) IsClientError() bool {
	status := c.HTTPStatus()
	return status >= 400 && status < 500
}
