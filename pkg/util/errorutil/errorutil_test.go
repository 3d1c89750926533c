package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantCode   string
		wantStatus int
	}{
		{"validation", NewValidationError("bad", nil), KindInvalidInput, CodeValidationFailed, http.StatusBadRequest},
		{"rate limited", NewRateLimited("slow down", nil), KindRateLimited, CodeRateLimited, http.StatusTooManyRequests},
		{"thread not found", NewThreadNotFound("TCK-1"), KindNotFound, CodeThreadNotFound, http.StatusNotFound},
		{"session inactive", NewAgentSessionInactive("g1"), KindPreconditionFailed, CodeAgentSessionInactive, http.StatusPreconditionFailed},
		{"has active", NewAgentHasActiveTicket("g1"), KindPreconditionFailed, CodeAgentHasActiveTicket, http.StatusPreconditionFailed},
		{"not assigned", NewNotAssigned("TCK-1"), KindPreconditionFailed, CodeNotAssigned, http.StatusPreconditionFailed},
		{"stale", NewStaleThread("TCK-1"), KindConflict, CodeStaleThread, http.StatusConflict},
		{"wrapped", fmt.Errorf("assign: %w", NewAgentNotAuthorized("g1")), KindPreconditionFailed, CodeAgentNotAuthorized, http.StatusPreconditionFailed},
		{"plain", errors.New("boom"), KindInternal, CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			if got.Kind != tt.wantKind || got.Code != tt.wantCode || got.HTTPStatus != tt.wantStatus {
				t.Fatalf("ToDomainError(%v) = %s/%s/%d, want %s/%s/%d",
					tt.err, got.Kind, got.Code, got.HTTPStatus, tt.wantKind, tt.wantCode, tt.wantStatus)
			}
		})
	}
}

func TestToDomainErrorNil(t *testing.T) {
	if ToDomainError(nil) != nil {
		t.Fatal("nil error should map to nil")
	}
	if CodeOf(nil) != "" || KindOf(nil) != "" {
		t.Fatal("nil error should have empty code and kind")
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	cause := errors.New("pq: relation tickets does not exist")
	de := ToDomainError(NewInternalError(cause))
	if de.Message != "internal server error" {
		t.Fatalf("message leaks cause: %q", de.Message)
	}
	if !errors.Is(de, cause) {
		t.Fatal("cause should stay reachable through Unwrap")
	}
}

func TestRetryable(t *testing.T) {
	if !ToDomainError(NewStaleThread("x")).Retryable() {
		t.Error("conflict should be retryable")
	}
	if !ToDomainError(NewRateLimited("x", nil)).Retryable() {
		t.Error("rate limit should be retryable")
	}
	if ToDomainError(NewNotAssigned("x")).Retryable() {
		t.Error("precondition failures are not retryable")
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewThreadClosed("TCK-9"))
	if !IsCode(err, CodeThreadClosed) {
		t.Fatal("expected THREAD_CLOSED")
	}
	if IsCode(nil, CodeThreadClosed) {
		t.Fatal("nil never matches")
	}
}
