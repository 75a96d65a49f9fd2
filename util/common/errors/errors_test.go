package errors

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("store.endpoint", "backend endpoint is not set")

	assert.EqualError(t, err, "invalid store.endpoint: backend endpoint is not set")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "store.endpoint", verr.Field)
}

func TestOpError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		msg    string
		target error
	}{
		{
			name:   "file",
			err:    NewFileError("/ext/a.js", "read", fs.ErrNotExist),
			kind:   KindFile,
			msg:    "file read /ext/a.js: file does not exist",
			target: fs.ErrNotExist,
		},
		{
			name:   "vcs",
			err:    NewVCSError("read_ref", "/ext", ErrNotFound),
			kind:   KindVCS,
			msg:    "vcs read_ref /ext: resource not found",
			target: ErrNotFound,
		},
		{
			name: "no cause",
			err:  NewFileError("/ext", "stat", nil),
			kind: KindFile,
			msg:  "file stat /ext",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.msg)
			var opErr *OpError
			require.True(t, errors.As(tt.err, &opErr))
			assert.Equal(t, tt.kind, opErr.Kind)
			if tt.target != nil {
				assert.ErrorIs(t, tt.err, tt.target)
			}
		})
	}
}
