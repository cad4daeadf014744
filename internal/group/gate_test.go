package group

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/splitpot/splitpot/internal/shared"
)

func TestRequireMissingMembership(t *testing.T) {
	err := Require(nil, false, false)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestRequireWriteCapability(t *testing.T) {
	reader := &Membership{GroupID: 1, UserID: 2}
	assert.NoError(t, Require(reader, false, false))
	assert.True(t, errors.Is(Require(reader, true, false), shared.ErrPermissionDenied))

	writer := &Membership{GroupID: 1, UserID: 2, CanWrite: true}
	assert.NoError(t, Require(writer, true, false))
	assert.True(t, errors.Is(Require(writer, false, true), shared.ErrPermissionDenied))
}

func TestRequireOwnerImpliesWrite(t *testing.T) {
	owner := &Membership{GroupID: 1, UserID: 2, IsOwner: true}
	assert.NoError(t, Require(owner, true, false))
	assert.NoError(t, Require(owner, false, true))
	assert.NoError(t, Require(owner, true, true))
}
