package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_RoundTrip(t *testing.T) {
	s := NewInMemory()
	uri, err := s.Put(context.Background(), "battle-1/a.mp3", []byte("audio bytes"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "mem://battle-1/a.mp3", uri)

	got, err := s.Get(context.Background(), "battle-1/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio bytes"), got)
}

func TestInMemory_GetMissing(t *testing.T) {
	s := NewInMemory()
	_, err := s.Get(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestInMemory_PutEmptyKey(t *testing.T) {
	s := NewInMemory()
	_, err := s.Put(context.Background(), "", []byte("x"), "audio/mpeg")
	assert.Error(t, err)
}

func TestInMemory_IsolatesCallerBuffer(t *testing.T) {
	s := NewInMemory()
	data := []byte("original")
	_, err := s.Put(context.Background(), "key", data, "audio/mpeg")
	require.NoError(t, err)

	data[0] = 'X'
	got, err := s.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}
