package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExitCode_Mapping verifies every run-level code maps to its exit code
func TestExitCode_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil is success", nil, ExitOK},
		{"config", New(ConfigInvalid, errors.New("bad")), ExitConfigInvalid},
		{"all sources", New(AllSourcesFailed, nil), ExitAllSourcesFailed},
		{"gate", New(QualityGateFail, nil), ExitQualityGate},
		{"schema", New(ValidationFail, nil), ExitValidation},
		{"uncaught", New(UncaughtException, nil), ExitUncaught},
		{"plain error", errors.New("boom"), ExitUncaught},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

// TestCodeOf_Wrapped verifies codes survive fmt.Errorf wrapping
func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("loading: %w", New(ConfigInvalid, errors.New("duplicate id")))

	assert.Equal(t, ConfigInvalid, CodeOf(err))
	assert.Equal(t, ExitConfigInvalid, ExitCode(err))
	assert.Contains(t, err.Error(), "CONFIG_INVALID: duplicate id")
}

// TestFromPanic verifies recovered values become UNCAUGHT_EXCEPTION errors
func TestFromPanic(t *testing.T) {
	sentinel := errors.New("nil map")

	fromErr := FromPanic(sentinel)
	assert.Equal(t, UncaughtException, fromErr.Code)
	assert.ErrorIs(t, fromErr, sentinel)

	fromString := FromPanic("index out of range")
	assert.Contains(t, fromString.Error(), "index out of range")
}
