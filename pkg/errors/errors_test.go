package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusyOnlyMatchesEngineBusy(t *testing.T) {
	assert.True(t, IsBusy(NewEngineBusy("SELECT 1")))
	assert.False(t, IsBusy(NewEngineError("SELECT 1", errors.New("boom"))))
	assert.False(t, IsBusy(nil))
}

func TestEngineErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewEngineError("INSERT", cause)
	require.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorMessagesIncludeContext(t *testing.T) {
	require.NotEmpty(t, NewConfigurationError("Finalize", "already finalized").Error())

	se := NewSchemaError("Widgets", "duplicate column")
	require.NotEmpty(t, se.Error())

	tre := NewTimeRegressionError("5", "3")
	require.NotEmpty(t, tre.Error())
}
