package chatmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicarena/fabric/appconfig"
)

type fakeModel struct{ id string }

func (f *fakeModel) Generate(ctx context.Context, req Request) (*Response, error) {
	return &Response{Content: "ok"}, nil
}
func (f *fakeModel) ModelID() string { return f.id }

func TestRegisterAndNew(t *testing.T) {
	Register("fake_test_provider", func(cfg appconfig.ProviderConfig) (ChatModel, error) {
		return &fakeModel{id: cfg.Model}, nil
	})

	m, err := New("fake_test_provider", appconfig.ProviderConfig{Model: "fake-1"})
	require.NoError(t, err)
	assert.Equal(t, "fake-1", m.ModelID())

	resp, err := m.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("nonexistent_provider_xyz", appconfig.ProviderConfig{})
	assert.Error(t, err)
}

func TestRegisterPanicsOnEmptyName(t *testing.T) {
	defer func() {
		assert.NotNil(t, recover())
	}()
	Register("", func(cfg appconfig.ProviderConfig) (ChatModel, error) { return nil, nil })
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	Register("dup_test_provider", func(cfg appconfig.ProviderConfig) (ChatModel, error) { return nil, nil })
	defer func() {
		assert.NotNil(t, recover())
	}()
	Register("dup_test_provider", func(cfg appconfig.ProviderConfig) (ChatModel, error) { return nil, nil })
}

func TestList_Sorted(t *testing.T) {
	names := List()
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}
