package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestUpstream_MirrorsStatus(t *testing.T) {
	err := Upstream("Failed to list files", http.StatusUnauthorized, `{"code":"bad_auth_token"}`)

	if err.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", err.Status)
	}
	body := err.Envelope()
	if body["error"] != "Failed to list files" {
		t.Errorf("unexpected error field %v", body["error"])
	}
	if body["status"] != http.StatusUnauthorized {
		t.Errorf("expected backend status in envelope, got %v", body["status"])
	}
	if body["details"] != `{"code":"bad_auth_token"}` {
		t.Errorf("expected backend body in envelope, got %v", body["details"])
	}
}

func TestUpstream_NeverDowngradesToSuccess(t *testing.T) {
	if got := Upstream("x", http.StatusOK, "").Status; got != http.StatusBadGateway {
		t.Errorf("expected 502 for a non-error backend status, got %d", got)
	}
}

func TestEnvelope_ErrorKeyWins(t *testing.T) {
	err := NotFound("Record with formula ID %s not found", "7").With("error", "shadowed")
	if got := err.Envelope()["error"]; got != "Record with formula ID 7 not found" {
		t.Errorf("unexpected error field %v", got)
	}
}

func TestFrom(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", NotFound("missing"))
	if !Is(wrapped, KindNotFound) {
		t.Error("expected wrapped NotFound to be recognised")
	}
	if got := From(wrapped); got.Status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got.Status)
	}

	plain := From(errors.New("boom"))
	if plain.Kind != KindInternal || plain.Status != http.StatusInternalServerError {
		t.Errorf("expected internal error, got %+v", plain)
	}
	if plain.Envelope()["message"] != "boom" {
		t.Errorf("expected cause message in envelope, got %v", plain.Envelope())
	}
	if From(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
