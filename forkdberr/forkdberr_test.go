package forkdberr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := ForkDatabase("duplicate block added: %s", "abc")
	assert.True(t, errors.Is(err, ErrForkDatabase))
	assert.False(t, errors.Is(err, ErrUnlinkable))
}

func TestWrappedCauseIsUnwrappable(t *testing.T) {
	cause := errors.New("boom")
	err := ForkDatabaseWrap(cause, "validator rejected block")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrForkDatabase))
}

func TestUnlinkableAndNotFoundCodes(t *testing.T) {
	assert.True(t, errors.Is(Unlinkable("missing parent"), ErrUnlinkable))
	assert.True(t, errors.Is(NotFound("missing id"), ErrNotFound))
}
