package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOfWrappedError(t *testing.T) {
	base := New(CodeTooLarge, "File too large (12.0MB). Max 10MB.")
	err := fmt.Errorf("ingest upload: %w", base)
	if got := CodeOf(err); got != CodeTooLarge {
		t.Fatalf("expected %s, got %s", CodeTooLarge, got)
	}
	if got := Message(err); got != base.Message {
		t.Fatalf("unexpected message %q", got)
	}
	if StatusForCode(CodeOf(err)) != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status for %s", CodeTooLarge)
	}
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("disk on fire")
	if CodeOf(err) != CodeInternal {
		t.Fatalf("expected internal code")
	}
	if Message(err) != "internal error" {
		t.Fatalf("internal details leaked: %q", Message(err))
	}
	if StatusForCode(CodeOf(err)) != http.StatusInternalServerError {
		t.Fatal("expected 500")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pdftotext: exit status 1")
	err := Wrap(CodeExtractionFailed, "Could not extract PDF text. Try copying text manually.", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if !Is(err, CodeExtractionFailed) {
		t.Fatal("expected extraction_failed code")
	}
}
