package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vantage/internal/database"
	vtesting "vantage/internal/testing"
)

type fakeStorage struct {
	uploads []string
	objects []types.Object
	deleted []string
}

func (f *fakeStorage) Upload(_ context.Context, key string, body io.Reader) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	f.uploads = append(f.uploads, key)
	return nil
}

func (f *fakeStorage) List(_ context.Context, _ string) ([]types.Object, error) {
	return f.objects, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func backupObject(ts time.Time) types.Object {
	return types.Object{
		Key:  aws.String(backupPrefix + ts.Format(backupTimeLayout) + ".tar.gz"),
		Size: aws.Int64(1024),
	}
}

func TestCreateArchiveSnapshotsDatabasesAndAuxFiles(t *testing.T) {
	db, cleanup := vtesting.NewTestDB(t, "journal")
	defer cleanup()

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tokens.json"), []byte(`{"encrypted":"x"}`), 0o600))

	svc := NewBackupService(&fakeStorage{}, []*database.DB{db}, dataDir, 30, zerolog.Nop())

	stagingDir := t.TempDir()
	archivePath, meta, err := svc.CreateArchive(stagingDir)
	require.NoError(t, err)

	names := make([]string, 0, len(meta.Files))
	for _, f := range meta.Files {
		names = append(names, f.Name)
		assert.Contains(t, f.Checksum, "sha256:")
		assert.Positive(t, f.SizeBytes)
	}
	assert.Contains(t, names, "journal.db")
	assert.Contains(t, names, "tokens.json")
	assert.NotContains(t, names, "signal_history.json", "absent aux files are skipped")

	// The archive must contain every manifest file plus the manifest.
	entries := readArchiveNames(t, archivePath)
	for _, name := range names {
		assert.Contains(t, entries, name)
	}
	assert.Contains(t, entries, "backup-metadata.json")
}

func TestCreateAndUploadShipsArchive(t *testing.T) {
	db, cleanup := vtesting.NewTestDB(t, "journal")
	defer cleanup()

	storage := &fakeStorage{}
	dataDir := t.TempDir()
	svc := NewBackupService(storage, []*database.DB{db}, dataDir, 0, zerolog.Nop())

	require.NoError(t, svc.CreateAndUpload(context.Background()))
	require.Len(t, storage.uploads, 1)
	assert.Contains(t, storage.uploads[0], backupPrefix)

	// Staging directories are cleaned up after the run.
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListBackupsSortsNewestFirst(t *testing.T) {
	storage := &fakeStorage{objects: []types.Object{
		backupObject(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)),
		backupObject(time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)),
		backupObject(time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)),
		{Key: aws.String("unrelated.txt")},
	}}
	svc := NewBackupService(storage, nil, t.TempDir(), 30, zerolog.Nop())

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp))
	assert.True(t, backups[1].Timestamp.After(backups[2].Timestamp))
}

func TestRotateKeepsMinimumAndRecent(t *testing.T) {
	now := time.Now().UTC()
	storage := &fakeStorage{objects: []types.Object{
		backupObject(now.Add(-1 * time.Hour)),
		backupObject(now.AddDate(0, 0, -2)),
		backupObject(now.AddDate(0, 0, -10)),
		backupObject(now.AddDate(0, 0, -40)),
		backupObject(now.AddDate(0, 0, -50)),
	}}
	svc := NewBackupService(storage, nil, t.TempDir(), 30, zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	// The two stale backups fall past the 30-day cutoff and beyond the
	// always-kept newest three.
	assert.Len(t, storage.deleted, 2)
}

func TestRotateRetentionZeroKeepsEverything(t *testing.T) {
	now := time.Now().UTC()
	storage := &fakeStorage{objects: []types.Object{
		backupObject(now.AddDate(0, 0, -400)),
		backupObject(now.AddDate(0, 0, -300)),
		backupObject(now.AddDate(0, 0, -200)),
		backupObject(now.AddDate(0, 0, -100)),
	}}
	svc := NewBackupService(storage, nil, t.TempDir(), 0, zerolog.Nop())

	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Empty(t, storage.deleted)
}

func readArchiveNames(t *testing.T, archivePath string) []string {
	t.Helper()

	file, err := os.Open(archivePath)
	require.NoError(t, err)
	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}
