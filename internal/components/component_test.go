package components

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmirror/internal/config"
	_ "feedmirror/internal/storage/jsonfile"
)

type fakeComponent struct {
	name    string
	deps    []string
	initErr error
	events  *[]string
}

func (f *fakeComponent) Name() string           { return f.name }
func (f *fakeComponent) Dependencies() []string { return f.deps }
func (f *fakeComponent) Validate() error        { return nil }

func (f *fakeComponent) Initialize(ctx context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	*f.events = append(*f.events, "init "+f.name)
	return nil
}

func (f *fakeComponent) Close(ctx context.Context) error {
	*f.events = append(*f.events, "close "+f.name)
	return nil
}

func TestRegistryOrder(t *testing.T) {
	var events []string
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&fakeComponent{name: "platform", deps: []string{"storage"}, events: &events}))
	require.NoError(t, r.Register(&fakeComponent{name: "storage", events: &events}))

	require.NoError(t, r.InitializeAll(context.Background()))
	require.NoError(t, r.CloseAll(context.Background()))

	assert.Equal(t, []string{"init storage", "init platform", "close platform", "close storage"}, events)
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&fakeComponent{name: "storage"}))
	assert.Error(t, r.Register(&fakeComponent{name: "storage"}))
}

func TestRegistryClosesOnFailure(t *testing.T) {
	var events []string
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&fakeComponent{name: "storage", events: &events}))
	require.NoError(t, r.Register(&fakeComponent{
		name:    "platform",
		deps:    []string{"storage"},
		initErr: errors.New("gateway down"),
		events:  &events,
	}))

	err := r.InitializeAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")
	assert.Equal(t, []string{"init storage", "close storage"}, events)
}

func TestRegistryMissingDependency(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&fakeComponent{name: "platform", deps: []string{"storage"}}))
	assert.Error(t, r.InitializeAll(context.Background()))
}

func TestStorageComponent(t *testing.T) {
	comp := NewStorageComponent(config.StorageConfig{Type: "json", Path: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, comp.Validate())
	require.NoError(t, comp.Initialize(context.Background()))
	assert.NotNil(t, comp.Store())
	assert.NoError(t, comp.Close(context.Background()))

	assert.Error(t, NewStorageComponent(config.StorageConfig{Type: "postgres"}).Validate())
	assert.Error(t, NewStorageComponent(config.StorageConfig{Type: "redis"}).Validate())
}

func TestPlatformComponentRequiresToken(t *testing.T) {
	comp := NewPlatformComponent(config.DiscordConfig{TokenEnv: "DISCORD_TOKEN"}, nil)
	err := comp.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
}
