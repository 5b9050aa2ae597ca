package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/config"
)

func buildTestContainer(t *testing.T) *Container {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	c, err := Build(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestBuildWiresCoreComponents(t *testing.T) {
	c := buildTestContainer(t)

	assert.NotNil(t, c.Bus)
	assert.NotNil(t, c.ParamStore)
	assert.NotNil(t, c.Orchestrator)
	assert.NotNil(t, c.Heartbeat)
	assert.NotNil(t, c.Nightly)
	assert.NotNil(t, c.Feeds)
	assert.NotNil(t, c.Scheduler)
	assert.NotNil(t, c.Backups)
	assert.Len(t, c.databases, len(databaseNames))
}

func TestBuildLeavesControlNilWithoutInteractionsKey(t *testing.T) {
	c := buildTestContainer(t)

	assert.Nil(t, c.Control)
}

func TestBuildLeavesR2NilWithoutCredentials(t *testing.T) {
	c := buildTestContainer(t)

	assert.Nil(t, c.R2)
}

func TestBuildAppliesKeywordCatalogOverrides(t *testing.T) {
	catalog := mergedCatalog("fda:0.99,brand-new-tag:0.42")

	assert.Equal(t, 0.99, catalog["fda"])
	assert.Equal(t, 0.42, catalog["brand-new-tag"])
	assert.Equal(t, 0.9, catalog["merger"])
}

func TestBuildOpensDatabaseProfilesPerName(t *testing.T) {
	c := buildTestContainer(t)

	for _, name := range databaseNames {
		db, ok := c.databases[name]
		require.True(t, ok, "expected database %q to be open", name)
		require.NotNil(t, db)
	}
}
