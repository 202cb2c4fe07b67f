package flagstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "flags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestMigrateSeedsGoogleEnabled(t *testing.T) {
	s := openTestStore(t)

	on, err := s.Bool(context.Background(), "google_enabled")
	require.NoError(t, err)
	assert.True(t, on, "google_enabled seeds to true")
}

func TestMigrateKeepsExistingValues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBool(ctx, "google_enabled", false))
	require.NoError(t, s.Migrate(ctx), "migrate is idempotent")

	on, err := s.Bool(ctx, "google_enabled")
	require.NoError(t, err)
	assert.False(t, on, "re-migrating never overwrites a set flag")
}

func TestSetAndReadBool(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBool(ctx, "beta_trails", true))
	on, err := s.Bool(ctx, "beta_trails")
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, s.SetBool(ctx, "beta_trails", false))
	on, err = s.Bool(ctx, "beta_trails")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestUnknownFlagIsAnError(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Bool(context.Background(), "no_such_flag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_flag")
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetBool(ctx, "beta_trails", true))
	flags, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 2)

	assert.Equal(t, "beta_trails", flags[0].Key)
	assert.Equal(t, "google_enabled", flags[1].Key)
	assert.False(t, flags[0].UpdatedAt.IsZero())
}
