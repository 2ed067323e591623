package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrInvalidTransition, "alert a-1 is resolved")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Unavailable(cause, "")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, FromError(fmt.Errorf("outer: %w", err)).Status)
}

func TestWithDetailsDoesNotMutateSentinel(t *testing.T) {
	err := WithDetails(ErrValidation, FieldDetail{Field: "severity", Message: "must be one of low medium high critical"})
	assert.Len(t, err.Details, 1)
	assert.Empty(t, ErrValidation.Details)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	err := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Nil(t, FromError(nil))
}
