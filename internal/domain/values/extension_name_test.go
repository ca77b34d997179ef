package values

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ValidateName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"sample", false},
		{"my-ext", false},
		{"a1", false},
		{"ext-2-go", false},
		{"@@@", true},
		{"", true},
		{"a", true},
		{"Sample", true},
		{"1abc", true},
		{"-abc", true},
		{"with_underscore", true},
		{"with space", true},
		{"../escape", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid extension name")
				assert.True(t, errors.Is(err, ErrInvalidExtensionName))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_NewExtensionName(t *testing.T) {
	n, err := NewExtensionName("sample")
	require.NoError(t, err)
	assert.Equal(t, "sample", n.String())

	n, err = NewExtensionName("@@@")
	require.ErrorIs(t, err, ErrInvalidExtensionName)
	assert.Empty(t, n.String())
}

func Test_RunID(t *testing.T) {
	id := NewRunID()
	assert.Len(t, id.String(), 36)
	assert.NotEqual(t, id, NewRunID())
}
