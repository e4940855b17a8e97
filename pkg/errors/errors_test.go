package errors

import (
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeVersionParse, "invalid version %q", "abc")
	if err.Code != ErrCodeVersionParse {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeVersionParse)
	}
	want := `VERSION_PARSE: invalid version "abc"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeCacheParse, cause, "read %s", "cache.toml")

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	want := "CACHE_PARSE_ERROR: read cache.toml: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeGit, "clone failed")
	if !Is(err, ErrCodeGit) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrCodeNetwork) {
		t.Error("Is should not match a different code")
	}
	if Is(fmt.Errorf("plain"), ErrCodeGit) {
		t.Error("Is should not match a plain error")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !Is(wrapped, ErrCodeGit) {
		t.Error("Is should unwrap standard wrapping")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeNoVersions, "none")); got != ErrCodeNoVersions {
		t.Errorf("GetCode = %q, want %q", got, ErrCodeNoVersions)
	}
	if got := GetCode(fmt.Errorf("plain")); got != "" {
		t.Errorf("GetCode on plain error = %q, want empty", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeUpdateUnknown, "no dependency named foo")
	if got := UserMessage(err); got != "no dependency named foo" {
		t.Errorf("UserMessage = %q", got)
	}
	if got := UserMessage(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("UserMessage on plain error = %q", got)
	}
}
