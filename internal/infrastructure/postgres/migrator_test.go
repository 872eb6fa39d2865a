package postgres

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateLogger(t *testing.T) {
	var buf bytes.Buffer

	debug := migrateLogger{log: zerolog.New(&buf).Level(zerolog.DebugLevel)}
	assert.True(t, debug.Verbose())

	debug.Printf("1/u init (%dms)\n", 12)
	assert.Contains(t, buf.String(), `"message":"1/u init (12ms)"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)

	buf.Reset()
	info := migrateLogger{log: zerolog.New(&buf).Level(zerolog.InfoLevel)}
	assert.False(t, info.Verbose())

	info.Printf("hidden")
	assert.Empty(t, buf.String())
}

func TestMigrationsReportMissingDirectory(t *testing.T) {
	dir := t.TempDir() + "/missing"
	url := "postgres://invalid:5432/db?sslmode=disable&connect_timeout=1"

	err := RunMigrations(url, dir, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open migrations at "+dir)

	err = RunMigrationsDown(url, dir, zerolog.Nop())
	assert.Error(t, err)

	_, _, err = MigrationVersion(url, dir, zerolog.Nop())
	assert.Error(t, err)
}
