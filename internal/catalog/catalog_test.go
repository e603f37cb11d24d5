package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
types:
  - code: short_gmail
    name: Gmail (short)
    price: 0.35
    backend: fast
  - code: aged_hotmail
    name: Hotmail (aged)
    price: 1.2
    backend: durable
tiers:
  - code: iron
    name: Iron
    discount: 0.0
    weekly_deposit: 0
  - code: bronze
    name: Bronze
    discount: 0.05
    weekly_deposit: 50
  - code: silver
    name: Silver
    discount: 0.1
    weekly_deposit: 200
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeCatalog(t, testCatalog))
	require.NoError(t, err)

	gmail, ok := c.Type("short_gmail")
	require.True(t, ok)
	assert.Equal(t, 0.35, gmail.Price)
	assert.Equal(t, BackendFast, gmail.Backend)

	_, ok = c.Type("yahoo")
	assert.False(t, ok)

	assert.Len(t, c.Types(), 2)
	assert.True(t, c.HasDurablePools())
}

func TestTierForInclusiveBoundary(t *testing.T) {
	c, err := Load(writeCatalog(t, testCatalog))
	require.NoError(t, err)

	tests := []struct {
		deposit float64
		want    string
	}{
		{0, "iron"},
		{49.99, "iron"},
		{50, "bronze"}, // exactly at threshold qualifies
		{199.99, "bronze"},
		{200, "silver"},
		{10000, "silver"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.TierFor(tt.deposit).Code, "deposit=%v", tt.deposit)
	}
}

func TestNextTier(t *testing.T) {
	c, err := Load(writeCatalog(t, testCatalog))
	require.NoError(t, err)

	next, ok := c.NextTier("iron")
	require.True(t, ok)
	assert.Equal(t, "bronze", next.Code)

	_, ok = c.NextTier("silver")
	assert.False(t, ok)
}

func TestReloadKeepsOldSnapshotOnError(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	c, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("types: []\ntiers: []\n"), 0o644))
	require.Error(t, c.Reload(path))

	// Old snapshot still served.
	_, ok := c.Type("short_gmail")
	assert.True(t, ok)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	bad := []string{
		"types:\n  - code: a\n    price: -1\n    backend: fast\ntiers:\n  - {code: iron, discount: 0, weekly_deposit: 0}\n",
		"types:\n  - code: a\n    price: 1\n    backend: tape\ntiers:\n  - {code: iron, discount: 0, weekly_deposit: 0}\n",
		"types:\n  - code: a\n    price: 1\n    backend: fast\ntiers:\n  - {code: iron, discount: 0, weekly_deposit: 10}\n",
	}
	for _, content := range bad {
		_, err := Load(writeCatalog(t, content))
		assert.Error(t, err)
	}
}
