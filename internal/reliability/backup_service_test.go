package reliability

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/database"
	apptesting "github.com/agentrace/agentrace/internal/testing"
)

func TestChecksumFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	checksum, err := ChecksumFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", checksum)

	// Same content, same checksum
	again, err := ChecksumFile(path)
	require.NoError(t, err)
	assert.Equal(t, checksum, again)

	_, err = ChecksumFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-metadata.json")

	metadata := BackupMetadata{
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Version:   "1.0.0",
		Databases: []DatabaseMetadata{
			{Name: "ledger", Filename: "ledger.db", SizeBytes: 4096, Checksum: "sha256:abc"},
		},
	}

	require.NoError(t, writeMetadata(path, metadata))

	parsed, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, metadata.Timestamp, parsed.Timestamp)
	require.Len(t, parsed.Databases, 1)
	assert.Equal(t, "ledger", parsed.Databases[0].Name)
	assert.Equal(t, "sha256:abc", parsed.Databases[0].Checksum)
}

func TestStageDatabasesProducesConsistentCopies(t *testing.T) {
	ledgerDB, cleanupLedger := apptesting.NewTestDB(t, "ledger")
	t.Cleanup(cleanupLedger)
	cacheDB, cleanupCache := apptesting.NewTestDB(t, "cache")
	t.Cleanup(cleanupCache)

	_, err := ledgerDB.Conn().Exec(
		"INSERT INTO portfolios (id, agent_id, cash, created_at) VALUES ('p1', 'agent-1', 100000, 0)")
	require.NoError(t, err)

	svc := NewBackupService(nil, map[string]*database.DB{
		"ledger": ledgerDB,
		"cache":  cacheDB,
	}, t.TempDir(), zerolog.Nop())

	stagingDir := t.TempDir()
	metadata, files, err := svc.stageDatabases(stagingDir)
	require.NoError(t, err)

	// Staged in sorted name order with checksums
	require.Equal(t, []string{"cache.db", "ledger.db"}, files)
	require.Len(t, metadata.Databases, 2)
	for _, db := range metadata.Databases {
		assert.Contains(t, db.Checksum, "sha256:")
		assert.Greater(t, db.SizeBytes, int64(0))
	}

	// The staged ledger copy carries the row
	staged, err := database.New(database.Config{
		Path:    filepath.Join(stagingDir, "ledger.db"),
		Profile: database.ProfileStandard,
		Name:    "ledger-staged",
	})
	require.NoError(t, err)
	defer staged.Close()

	var cash float64
	require.NoError(t, staged.Conn().QueryRow(
		"SELECT cash FROM portfolios WHERE agent_id = 'agent-1'").Scan(&cash))
	assert.InDelta(t, 100000, cash, 1e-9)
}

func TestCreateArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bravo"), 0644))

	archivePath := filepath.Join(dir, "backup.tar.gz")
	require.NoError(t, createArchive(archivePath, dir, []string{"a.txt", "b.txt"}))

	file, err := os.Open(archivePath)
	require.NoError(t, err)
	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := map[string]string{}
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[header.Name] = string(data)
	}

	assert.Equal(t, map[string]string{"a.txt": "alpha", "b.txt": "bravo"}, contents)
}
