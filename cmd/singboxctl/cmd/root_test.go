package cmd

import (
	"errors"
	"testing"

	"github.com/singbox-orbit/node-agent/internal/apperr"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"not found", apperr.New(apperr.NotFound, "missing"), 2},
		{"bad request", apperr.New(apperr.BadRequest, "bad"), 3},
		{"invalid type", apperr.New(apperr.InvalidType, "bad type"), 3},
		{"config validation", apperr.New(apperr.ConfigValidationError, "invalid config"), 4},
		{"singbox validation", apperr.New(apperr.SingboxValidationError, "invalid"), 4},
		{"process error", apperr.New(apperr.ProcessError, "crashed"), 5},
		{"internal", apperr.New(apperr.Internal, "oops"), 1},
		{"plain error", errors.New("boom"), 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCodeFor(tc.err); got != tc.want {
				t.Errorf("ExitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestExitCodeFor_WrappedError(t *testing.T) {
	wrapped := apperr.Wrap(apperr.NotFound, "lookup failed", errors.New("underlying"))
	if got := ExitCodeFor(wrapped); got != 2 {
		t.Errorf("ExitCodeFor(wrapped) = %d, want 2", got)
	}
}
