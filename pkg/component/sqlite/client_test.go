package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/docqa/pkg/options/sqlite"
)

func TestNewCreatesDatabase(t *testing.T) {
	opts := options.NewOptions()
	opts.Path = filepath.Join(t.TempDir(), "nested", "docqa.db")

	client, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	assert.Equal(t, "sqlite", client.Name())
	require.NoError(t, client.Ping(context.Background()))

	var fk int
	require.NoError(t, client.DB().Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)
}

func TestNewNilOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}
