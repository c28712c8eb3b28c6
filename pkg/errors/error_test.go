package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "officehours/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{RequestNotFound, "Request not found"},
		{InvalidParams, "Invalid parameters"},
		{StoreUnavailable, "Storage temporarily unavailable"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{InvalidStatus, 400},
		{NoEligibleRequest, 400},
		{TokenInvalid, 401},
		{Forbidden, 403},
		{NotCourseMember, 403},
		{TransitionForbidden, 403},
		{RequestNotFound, 404},
		{CourseNotFound, 404},
		{StatusConflict, 409},
		{RequestClosed, 403},
		{TooManyRequests, 429},
		{StoreUnavailable, 500},
		{InternalServerError, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestErrorCode_IsClientError(t *testing.T) {
	if !NoEligibleRequest.IsClientError() {
		t.Fatalf("expected NoEligibleRequest to be a client error")
	}
	if StoreUnavailable.IsClientError() {
		t.Fatalf("expected StoreUnavailable to be a server error")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(RequestNotFound, "request %s not found", "r-1")

	want := "request r-1 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if err.Stack == "" {
		t.Errorf("expected stack to be captured")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	originalErr := errors.New("connection refused")
	err := Wrap(originalErr, StoreUnavailable)

	if err.Code != StoreUnavailable {
		t.Fatalf("Code = %v, want %v", err.Code, StoreUnavailable)
	}
	if !errors.Is(err, originalErr) {
		t.Fatalf("expected wrapped error to match original")
	}
	if Wrap(nil, StoreUnavailable) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestWrapDoesNotMutateOriginal(t *testing.T) {
	base := New(StatusConflict)
	wrapped := Wrap(base, InternalServerError)

	if base.Code != StatusConflict {
		t.Fatalf("original code changed to %v", base.Code)
	}
	if wrapped.Code != InternalServerError {
		t.Fatalf("wrapped code = %v", wrapped.Code)
	}
}

func TestGetCodeThroughFmtWrap(t *testing.T) {
	inner := New(TransitionForbidden)
	outer := fmt.Errorf("transition: %w", inner)

	if got := GetCode(outer); got != TransitionForbidden {
		t.Fatalf("GetCode() = %v, want %v", got, TransitionForbidden)
	}
	if !Is(outer, TransitionForbidden) {
		t.Fatalf("expected Is to find code through wrapping")
	}
	if GetCode(errors.New("plain")) != InternalServerError {
		t.Fatalf("expected plain errors to map to internal")
	}
	if GetCode(nil) != Success {
		t.Fatalf("expected nil to map to success")
	}
}

func TestUnavailable(t *testing.T) {
	err := Unavailable(errors.New("i/o timeout"), "read status")
	if err.Code != StoreUnavailable {
		t.Fatalf("Code = %v", err.Code)
	}
	if err.Details["operation"] != "read status" {
		t.Fatalf("unexpected details: %v", err.Details)
	}
	if Unavailable(nil, "noop") != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("text", "must not be empty")
	if err.Code != ValidationFailed {
		t.Fatalf("Code = %v", err.Code)
	}
	if err.Details["field"] != "text" || err.Details["reason"] != "must not be empty" {
		t.Fatalf("unexpected details: %v", err.Details)
	}
}
