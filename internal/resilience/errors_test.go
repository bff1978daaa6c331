package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_ExplicitWrap(t *testing.T) {
	err := NewTransientError(errors.New("503 from backend"), 503)
	if !IsTransient(err) {
		t.Error("explicit TransientError should be transient")
	}
	wrapped := fmt.Errorf("drain: %w", err)
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should still be transient")
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
}

func TestIsTransient_PermanentRejection(t *testing.T) {
	if IsTransient(errors.New("worker not assigned to job")) {
		t.Error("backend rejection must not be transient")
	}
}

func TestIsTransient_TransportPatterns(t *testing.T) {
	for _, msg := range []string{
		"read tcp: connection reset by peer",
		"Post \"https://api\": context deadline exceeded",
		"dial tcp: lookup api: no such host",
	} {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("%q should classify as transient", msg)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 409, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}
