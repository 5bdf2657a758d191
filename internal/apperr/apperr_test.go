package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindAuth, http.StatusUnauthorized},
		{KindValidation, http.StatusBadRequest},
		{KindTooLarge, http.StatusRequestEntityTooLarge},
		{KindNotFound, http.StatusNotFound},
		{KindQuota, http.StatusTooManyRequests},
		{KindUpstreamEmpty, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
		{Kind(99), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		if got := tc.kind.HTTPStatus(); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := New(KindQuota, "daily message limit reached")
	wrapped := fmt.Errorf("respond: %w", base)

	if got := KindOf(wrapped); got != KindQuota {
		t.Errorf("got %v, want KindQuota", got)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("got %v, want KindInternal for unclassified", got)
	}
	if got := KindOf(nil); got != KindInternal {
		t.Errorf("got %v, want KindInternal for nil", got)
	}
}

func TestMessageOpacity(t *testing.T) {
	if got := Message(New(KindNotFound, "profile not found")); got != "profile not found" {
		t.Errorf("got %q", got)
	}

	// Internal causes must never leak through Message.
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	if got := Message(fmt.Errorf("load user: %w", cause)); got != "internal error" {
		t.Errorf("got %q, want opaque message", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, "persist turn", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause lost from chain")
	}
	if err.Error() == "persist turn" {
		t.Error("Error() should include the cause for logs")
	}
}
