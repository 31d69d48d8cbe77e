package cli

import (
	"errors"
	"fmt"
	"testing"

	"mercator-hq/lineage/pkg/tracecontext"
)

// TestErrorMessages tests the rendered messages.
func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "config",
			err:  NewConfigError("output", `unsupported format "yaml"`),
			want: `invalid output: unsupported format "yaml"`,
		},
		{
			name: "command",
			err:  NewCommandError("decode", errors.New("bad value")),
			want: "decode: bad value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestCommandErrorUnwrap tests that sentinel errors survive wrapping.
func TestCommandErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("decode annotation: %w", tracecontext.ErrMalformedContext)
	err := NewCommandError("decode", cause)

	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !errors.Is(err, tracecontext.ErrMalformedContext) {
		t.Error("errors.Is(err, ErrMalformedContext) = false")
	}
}

// TestExitCode tests the mapping of errors to exit codes.
func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("stage", "unknown"), ExitUsage},
		{"wrapped config", fmt.Errorf("run: %w", NewConfigError("stage", "unknown")), ExitUsage},
		{"command", NewCommandError("run", errors.New("listen failed")), ExitFailure},
		{"plain", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
