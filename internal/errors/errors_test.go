package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfWalksChain(t *testing.T) {
	base := errors.New("connection refused")
	coded := New(CodeNetwork, "fetch catalog", base)
	wrapped := fmt.Errorf("refresh: %w", coded)

	if got := CodeOf(wrapped); got != CodeNetwork {
		t.Fatalf("CodeOf = %q, want %q", got, CodeNetwork)
	}
	if !IsCode(wrapped, CodeNetwork) {
		t.Fatal("IsCode should match network code through wrapping")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("structured error should unwrap to the base error")
	}
}

func TestCodeOfUnstructured(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf = %q, want %q", got, CodeUnknown)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("CodeOf(nil) = %q, want %q", got, CodeUnknown)
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		err  Error
		want string
	}{
		{"message wins", New(CodeIO, "disk full", errors.New("ENOSPC")), "disk full"},
		{"wrapped error", New(CodeIO, "", errors.New("ENOSPC")), "ENOSPC"},
		{"code only", New(CodeChecksum, "", nil), "checksum"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", New(CodeNetwork, "timeout", nil), true},
		{"wrapped network", fmt.Errorf("update ModA: %w", New(CodeNetwork, "reset", nil)), true},
		{"checksum", New(CodeChecksum, "mismatch", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}
