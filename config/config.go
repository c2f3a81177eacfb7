package config

import (
	"fmt"
	"strings"
	"time"

	"paper-kb/apperr"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// DBDriver ist "postgres" oder "sqlite" (lokale Läufe)
	DBDriver       string `envconfig:"DB_DRIVER" default:"postgres"`
	SQLitePath     string `envconfig:"SQLITE_PATH" default:"./data/paper-kb.db"`
	DBHost         string `envconfig:"DB_HOST"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER"`
	DBPassword     string `envconfig:"DB_PASSWORD"`
	DBName         string `envconfig:"DB_NAME"`
	DBSSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`
	LogMode      string `envconfig:"LOG_MODE" default:"production"`

	// Verzeichnisse
	InputDir  string `envconfig:"INPUT_DIR" default:"./data/pdfs"`
	OutputDir string `envconfig:"OUTPUT_DIR" default:"./data/markdown"`
	TempDir   string `envconfig:"TEMP_DIR"`

	// Extraktion (MinerU-CLI)
	ExtractorBin     string `envconfig:"EXTRACTOR_BIN" default:"mineru"`
	ExtractorBackend string `envconfig:"EXTRACTOR_BACKEND" default:"pipeline"`
	ExtractorLang    string `envconfig:"EXTRACTOR_LANG" default:"en"`

	// Strukturierung (HTTP-Dienst)
	StructurerURL    string `envconfig:"STRUCTURER_URL"`
	StructurerAPIKey string `envconfig:"STRUCTURER_API_KEY"`

	// Pipeline
	ExtractWorkers   int           `envconfig:"EXTRACT_WORKERS" default:"2"`
	StructureWorkers int           `envconfig:"STRUCTURE_WORKERS" default:"4"`
	ImportWorkers    int           `envconfig:"IMPORT_WORKERS" default:"2"`
	QueueCapacity    int           `envconfig:"QUEUE_CAPACITY" default:"1000"`
	ExtractTimeout   time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"600s"`
	StructureTimeout time.Duration `envconfig:"STRUCTURE_TIMEOUT" default:"120s"`
	DequeuePoll      time.Duration `envconfig:"DEQUEUE_POLL" default:"1s"`
	JoinTimeout      time.Duration `envconfig:"JOIN_TIMEOUT" default:"30s"`
	ImportBatchSize  int           `envconfig:"IMPORT_BATCH_SIZE" default:"50"`
	CacheResetEvery  int           `envconfig:"CACHE_RESET_EVERY" default:"100"`
	CacheMaxEntries  int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
	AdmissionPause   time.Duration `envconfig:"ADMISSION_PAUSE" default:"2s"`

	// Kategorien
	DefaultCategory   string `envconfig:"DEFAULT_CATEGORY" default:"Environmental Engineering"`
	CategoryRulesFile string `envconfig:"CATEGORY_RULES_FILE"`

	// GPU-Zuteilung; -1 erkennt die Anzahl über nvidia-smi
	DeviceCount     int           `envconfig:"DEVICE_COUNT" default:"-1"`
	DeviceMinFreeGB float64       `envconfig:"DEVICE_MIN_FREE_GB" default:"4"`
	DeviceWait      time.Duration `envconfig:"DEVICE_WAIT" default:"60s"`
	DevicePoll      time.Duration `envconfig:"DEVICE_POLL" default:"2s"`

	// Zeitgesteuerte Deduplizierung; leer deaktiviert den Job
	DedupSchedule string `envconfig:"DEDUP_SCHEDULE" default:"0 3 * * *"`

	// Optionales Artefakt-Archiv
	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3Bucket string `envconfig:"S3_BUCKET"`

	// Backups
	BackupBucket string `envconfig:"BACKUP_S3_BUCKET"`
	KeepBackups  int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// ArchiveEnabled meldet, ob das S3-Archiv vollständig konfiguriert ist.
func (c *Config) ArchiveEnabled() bool {
	return c.S3URL != "" && c.S3Bucket != "" && c.S3Key != "" && c.S3Secret != ""
}

// Validate prüft die Pipeline-Parameter. Fehler sind fatal und verhindern den Start.
func (c *Config) Validate() error {
	var problems []string
	switch c.DBDriver {
	case "postgres":
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			problems = append(problems, "DB_HOST, DB_USER und DB_NAME sind für postgres erforderlich")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			problems = append(problems, "SQLITE_PATH fehlt")
		}
	default:
		problems = append(problems, fmt.Sprintf("unbekannter DB_DRIVER %q", c.DBDriver))
	}
	if strings.TrimSpace(c.StructurerURL) == "" {
		problems = append(problems, "STRUCTURER_URL fehlt")
	}
	if strings.TrimSpace(c.ExtractorBin) == "" {
		problems = append(problems, "EXTRACTOR_BIN fehlt")
	}
	sizes := []struct {
		name  string
		value int
	}{
		{"EXTRACT_WORKERS", c.ExtractWorkers},
		{"STRUCTURE_WORKERS", c.StructureWorkers},
		{"IMPORT_WORKERS", c.ImportWorkers},
		{"QUEUE_CAPACITY", c.QueueCapacity},
		{"IMPORT_BATCH_SIZE", c.ImportBatchSize},
		{"CACHE_RESET_EVERY", c.CacheResetEvery},
		{"CACHE_MAX_ENTRIES", c.CacheMaxEntries},
	}
	for _, s := range sizes {
		if s.value <= 0 {
			problems = append(problems, s.name+" muss > 0 sein")
		}
	}
	if c.ExtractTimeout <= 0 || c.StructureTimeout <= 0 || c.DequeuePoll <= 0 || c.JoinTimeout <= 0 {
		problems = append(problems, "Timeouts müssen > 0 sein")
	}
	if c.DevicePoll <= 0 || c.AdmissionPause <= 0 {
		problems = append(problems, "DEVICE_POLL und ADMISSION_PAUSE müssen > 0 sein")
	}
	if c.DeviceWait < 0 {
		problems = append(problems, "DEVICE_WAIT darf nicht negativ sein")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrFatalConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
