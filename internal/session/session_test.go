package session

import (
	"errors"
	"testing"

	"devroom/internal/chat"
)

type countingClearer struct {
	calls int
	err   error
}

func (c *countingClearer) ClearAll() error {
	c.calls++
	return c.err
}

func TestTeardownClearsAllExactlyOnce(t *testing.T) {
	clearer := &countingClearer{}
	s := New(chat.UserRef{ID: "u1"}, "tok", clearer)

	if !s.Active() {
		t.Fatal("fresh session should be active")
	}

	if err := s.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if err := s.Teardown(); err != nil {
		t.Fatalf("second Teardown: %v", err)
	}

	if clearer.calls != 1 {
		t.Fatalf("ClearAll called %d times, want exactly 1", clearer.calls)
	}
	if s.Active() {
		t.Fatal("session should be inactive after teardown")
	}
}

func TestTeardownSurfacesClearError(t *testing.T) {
	boom := errors.New("disk gone")
	s := New(chat.UserRef{ID: "u1"}, "tok", &countingClearer{err: boom})

	if err := s.Teardown(); !errors.Is(err, boom) {
		t.Fatalf("expected clear error, got %v", err)
	}
	if s.Active() {
		t.Fatal("session must be invalidated even when the wipe fails")
	}
}

func TestTeardownWithoutStore(t *testing.T) {
	s := New(chat.UserRef{ID: "u1"}, "tok", nil)

	if err := s.Teardown(); err != nil {
		t.Fatalf("Teardown without store: %v", err)
	}
}
