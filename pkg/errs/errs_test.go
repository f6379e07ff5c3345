package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New(400, CodeInvalidEdit, "bad parameters")
	want := "InvalidEditParameters: bad parameters"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := Wrap(500, CodeUpstream, "detector call failed", errors.New("connection refused"))
	want = "UpstreamFailure: detector call failed: connection refused"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(500, CodeInternal, "something broke", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}
}

func TestFrom(t *testing.T) {
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}

	structured := New(413, CodeTooLargeImage, "too big")
	if got := From(structured); got != structured {
		t.Errorf("From should return the original *Error, got %v", got)
	}

	// Structured errors stay classified even under further wrapping.
	layered := fmt.Errorf("processing: %w", structured)
	got := From(layered)
	if got.Status != 413 || got.Code != CodeTooLargeImage {
		t.Errorf("From(layered) = %d/%s, want 413/%s", got.Status, got.Code, CodeTooLargeImage)
	}

	plain := From(errors.New("oops"))
	if plain.Status != 500 || plain.Code != CodeInternal {
		t.Errorf("From(plain) = %d/%s, want 500/%s", plain.Status, plain.Code, CodeInternal)
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("apply edits: %w", New(400, CodeFaceIndexOutOfRange, "face index 3 of 1"))
	if !Is(err, CodeFaceIndexOutOfRange) {
		t.Error("Is should see through wrapping")
	}
	if Is(err, CodeTooLargeImage) {
		t.Error("Is matched the wrong code")
	}
	if Is(errors.New("plain"), CodeInternal) {
		t.Error("plain errors carry no code")
	}
}
