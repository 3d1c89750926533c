package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/support-router/internal/repository"
)

func TestRetryReadRetriesUnavailable(t *testing.T) {
	calls := 0
	got, err := retryRead(context.Background(), 3, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", repository.ErrUnavailable
		}
		return "ok", nil
	})
	if err != nil || got != "ok" || calls != 3 {
		t.Fatalf("got %q, %v after %d calls", got, err, calls)
	}
}

func TestRetryReadStopsOnOtherErrors(t *testing.T) {
	calls := 0
	_, err := retryRead(context.Background(), 3, func(context.Context) (int, error) {
		calls++
		return 0, repository.ErrNotFound
	})
	if !errors.Is(err, repository.ErrNotFound) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetryReadGivesUp(t *testing.T) {
	calls := 0
	_, err := retryRead(context.Background(), 2, func(context.Context) (int, error) {
		calls++
		return 0, repository.ErrUnavailable
	})
	if !errors.Is(err, repository.ErrUnavailable) || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
