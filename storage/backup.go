package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"paper-kb/config"

	"go.uber.org/zap"
)

// BackupPrefix ist das Schlüsselpräfix der Datenbank-Backups.
const BackupPrefix = "backups/"

// Dumper erzeugt einen Datenbank-Dump.
type Dumper func(ctx context.Context, cfg *config.Config) ([]byte, error)

// Backup erstellt einen komprimierten Dump, lädt ihn hoch und rotiert alte Backups.
type Backup struct {
	Config *config.Config
	Client ObjectStore
	Dump   Dumper
	Logger *zap.Logger
	Now    func() time.Time
}

func NewBackup(cfg *config.Config, client ObjectStore, logger *zap.Logger) *Backup {
	return &Backup{Config: cfg, Client: client, Dump: PgDump, Logger: logger, Now: time.Now}
}

// Bucket liefert den Ziel-Bucket; ohne BACKUP_S3_BUCKET der Archiv-Bucket.
func (b *Backup) Bucket() string {
	if b.Config.BackupBucket != "" {
		return b.Config.BackupBucket
	}
	return b.Config.S3Bucket
}

// Run führt das Backup aus und liefert den Schlüssel des neuen Objekts.
func (b *Backup) Run(ctx context.Context) (string, error) {
	b.Logger.Info("Starte Backup-Prozess")
	dump, err := b.Dump(ctx, b.Config)
	if err != nil {
		return "", fmt.Errorf("fehler beim Erstellen des DB-Dumps: %w", err)
	}

	key := BackupPrefix + fmt.Sprintf("backup-%s.sql.gz", b.Now().UTC().Format("2006-01-02T15-04-05Z"))
	if err := UploadFile(ctx, b.Client, b.Bucket(), key, dump); err != nil {
		return "", fmt.Errorf("fehler beim Hochladen nach S3: %w", err)
	}
	b.Logger.Info("Backup hochgeladen", zap.String("bucket", b.Bucket()), zap.String("key", key))

	if _, err := RotateObjects(ctx, b.Client, b.Bucket(), BackupPrefix, b.Config.KeepBackups, b.Logger); err != nil {
		return key, fmt.Errorf("fehler bei der Rotation alter Backups: %w", err)
	}
	return key, nil
}

// PgDump ruft pg_dump auf und komprimiert die Ausgabe.
func PgDump(ctx context.Context, cfg *config.Config) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", strconv.Itoa(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort wird über PGPASSWORD bereitgestellt
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.DBPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, stdout); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
