package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataError_WrapsCause(t *testing.T) {
	cause := errors.New("open gadm.shp: no such file")
	err := fmt.Errorf("load: %w", NewDataError("gadm.shp", "unreadable source", cause))

	var dataErr *DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, "gadm.shp", dataErr.Source)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "unreadable source")
}

func TestGenerationError_Message(t *testing.T) {
	err := NewGenerationError("IND.1.2_1", 1000, errors.New("sampling budget exhausted"))
	assert.Equal(t, "generation failed for district IND.1.2_1 after 1000 attempts: sampling budget exhausted", err.Error())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "data error", err: NewDataError("x", "y", nil), want: 2},
		{name: "no districts", err: fmt.Errorf("seed: %w", ErrNoDistricts), want: 2},
		{name: "connection", err: NewConnectionError("postgres", errors.New("refused")), want: 3},
		{name: "other", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
