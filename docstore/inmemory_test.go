package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicarena/fabric/apperrors"
)

func TestInMemory_CreateGetRoundTrip(t *testing.T) {
	s := NewInMemory()
	doc := Doc{"uuid": "abc", "a_system_key": "noise:quiet"}

	err := s.Create(context.Background(), "battles", "abc", doc)
	require.NoError(t, err)

	got, version, err := s.Get(context.Background(), "battles", "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, "noise:quiet", got["a_system_key"])
}

func TestInMemory_CreateDuplicateFails(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), "battles", "abc", Doc{}))

	err := s.Create(context.Background(), "battles", "abc", Doc{})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeAlreadyExists, appErr.Code)
}

func TestInMemory_GetMissing(t *testing.T) {
	s := NewInMemory()
	_, _, err := s.Get(context.Background(), "battles", "nonexistent")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestInMemory_UpdateWithCorrectVersion(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), "battles", "abc", Doc{"vote": nil}))

	err := s.Update(context.Background(), "battles", "abc", Doc{"vote": "A"}, 1)
	require.NoError(t, err)

	got, version, err := s.Get(context.Background(), "battles", "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, "A", got["vote"])
}

func TestInMemory_UpdateWithStaleVersionStillAppliesLWW(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), "battles", "abc", Doc{"vote": nil}))

	err := s.Update(context.Background(), "battles", "abc", Doc{"vote": "B"}, 0)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code)
	assert.Equal(t, 200, appErr.HTTPStatus())

	got, _, getErr := s.Get(context.Background(), "battles", "abc")
	require.NoError(t, getErr)
	assert.Equal(t, "B", got["vote"], "last-writer-wins should still apply the patch")
}
