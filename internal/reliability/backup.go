package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"vantage/internal/database"
)

const (
	backupPrefix     = "vantage-backup-"
	backupTimeLayout = "2006-01-02-150405"

	// minBackupsToKeep is honoured by rotation regardless of age
	minBackupsToKeep = 3
)

// auxFiles are the plain and encrypted state files backed up alongside the
// database snapshots, relative to the data directory. Missing files are
// skipped; a fresh install has none of them yet.
var auxFiles = []string{
	"config.encrypted.json",
	"tokens.json",
	"alert_config.json",
	"signal_history.json",
}

// Storage is the object-store surface the backup service needs. Satisfied
// by S3Client.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]types.Object, error)
	Delete(ctx context.Context, key string) error
}

// Metadata describes one backup archive
type Metadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one file inside a backup archive
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo summarises a stored backup
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService archives the data directory (consistent SQLite snapshots
// via VACUUM INTO plus the encrypted blobs and watcher state) and ships
// the archive to off-site storage.
type BackupService struct {
	storage       Storage
	dbs           []*database.DB
	dataDir       string
	retentionDays int
	log           zerolog.Logger
}

// NewBackupService creates a backup service
func NewBackupService(storage Storage, dbs []*database.DB, dataDir string, retentionDays int, log zerolog.Logger) *BackupService {
	return &BackupService{
		storage:       storage,
		dbs:           dbs,
		dataDir:       dataDir,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "backup").Logger(),
	}
}

// CreateAndUpload builds one archive and uploads it, then prunes old
// backups per the retention policy
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	start := time.Now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	archivePath, meta, err := s.CreateArchive(stagingDir)
	if err != nil {
		return err
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	info, err := archiveFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	key := filepath.Base(archivePath)
	if err := s.storage.Upload(ctx, key, archiveFile); err != nil {
		return err
	}

	s.log.Info().
		Str("archive", key).
		Int("files", len(meta.Files)).
		Int64("size_bytes", info.Size()).
		Dur("duration", time.Since(start)).
		Msg("Backup uploaded")

	return s.RotateOldBackups(ctx)
}

// CreateArchive snapshots every database and auxiliary file into
// stagingDir and packs them with a metadata manifest into one tar.gz.
// Returns the archive path and its manifest.
func (s *BackupService) CreateArchive(stagingDir string) (string, Metadata, error) {
	meta := Metadata{Timestamp: time.Now().UTC()}
	var staged []string

	for _, db := range s.dbs {
		name := db.Name() + ".db"
		dst := filepath.Join(stagingDir, name)

		s.log.Debug().Str("database", db.Name()).Msg("Snapshotting database")
		if err := db.VacuumInto(dst); err != nil {
			return "", meta, fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}
		staged = append(staged, name)
	}

	for _, name := range auxFiles {
		src := filepath.Join(s.dataDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyFile(src, filepath.Join(stagingDir, name)); err != nil {
			return "", meta, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		staged = append(staged, name)
	}

	for _, name := range staged {
		path := filepath.Join(stagingDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return "", meta, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		checksum, err := fileChecksum(path)
		if err != nil {
			return "", meta, fmt.Errorf("failed to checksum %s: %w", name, err)
		}
		meta.Files = append(meta.Files, FileMetadata{
			Name:      name,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metaPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metaPath, meta); err != nil {
		return "", meta, fmt.Errorf("failed to write metadata: %w", err)
	}
	staged = append(staged, "backup-metadata.json")

	archiveName := backupPrefix + meta.Timestamp.Format(backupTimeLayout) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, staged); err != nil {
		return "", meta, fmt.Errorf("failed to create archive: %w", err)
	}

	return archivePath, meta, nil
}

// ListBackups lists stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.storage.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		if !strings.HasPrefix(filename, backupPrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		raw := strings.TrimSuffix(strings.TrimPrefix(filename, backupPrefix), ".tar.gz")
		timestamp, err := time.Parse(backupTimeLayout, raw)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Unparseable backup timestamp")
			continue
		}

		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes backups past the retention window, always
// keeping the newest minBackupsToKeep. Retention 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context) error {
	if s.retentionDays <= 0 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.storage.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("filename", backup.Filename).Msg("Deleted old backup")
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation completed")
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(meta)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func createArchive(archivePath, sourceDir string, names []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, name := range names {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
