package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"histsync/internal/history"
)

// MaxBatchSize keeps one bulk statement under the Postgres limit of 65535
// bind parameters (18 columns per row).
const MaxBatchSize = 3000

type Config struct {
	Env          string           `mapstructure:"env"` // "dev" or "prod"
	Log          LogConfig        `mapstructure:"log"`
	Migration    MigrationConfig  `mapstructure:"migration"`
	Source       PostgresConfig   `mapstructure:"source"`
	Destinations []PostgresConfig `mapstructure:"destinations"`
}

// MigrationConfig drives one copy run between the source and destinations.
type MigrationConfig struct {
	StartTS      int64         `mapstructure:"start_ts"`      // inclusive hour_timestamp lower bound
	EndTS        int64         `mapstructure:"end_ts"`        // inclusive upper bound, 0 = unbounded
	BatchSize    int           `mapstructure:"batch_size"`    // rows per page and per bulk statement
	Mode         string        `mapstructure:"mode"`          // "ifAbsent" or "orReplace"
	Pagination   string        `mapstructure:"pagination"`    // "keyset" or "offset"
	BatchDelay   time.Duration `mapstructure:"batch_delay"`   // minimum spacing between batches
	QueryTimeout time.Duration `mapstructure:"query_timeout"` // per store call

	MaxRetries   int           `mapstructure:"max_retries"` // bounded retry of a failed batch write, 0 = fail fast
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	CheckpointFile string `mapstructure:"checkpoint_file"`
	Resume         bool   `mapstructure:"resume"`
	DumpDir        string `mapstructure:"dump_dir"`      // write each batch statement as .sql when set
	StrictVerify   bool   `mapstructure:"strict_verify"` // count mismatch fails the run
}

// LogConfig controls the zap logger and its optional rotating file output.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// Load builds the configuration from defaults, an optional config.yaml,
// a .env file, environment variables and finally command-line flags.
// It returns pflag.ErrHelp when -h/--help was requested.
func Load(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	loadDotenv()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		for _, dir := range configDirs() {
			v.AddConfigPath(dir)
		}
	}

	// Support environment variables with dot notation (e.g., MIGRATION_BATCH_SIZE)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	for key, flag := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the run parameters before any store is opened.
func (c *Config) Validate() error {
	m := c.Migration
	if m.BatchSize < 1 || m.BatchSize > MaxBatchSize {
		return fmt.Errorf("migration.batch_size must be between 1 and %d, got %d", MaxBatchSize, m.BatchSize)
	}
	if _, err := history.ParseMode(m.Mode); err != nil {
		return fmt.Errorf("migration.mode: %w", err)
	}
	if m.Pagination != "keyset" && m.Pagination != "offset" {
		return fmt.Errorf("migration.pagination must be keyset or offset, got %q", m.Pagination)
	}
	if m.StartTS < 0 {
		return fmt.Errorf("migration.start_ts must not be negative")
	}
	if m.EndTS != 0 && m.EndTS < m.StartTS {
		return fmt.Errorf("migration.end_ts %d is before start_ts %d", m.EndTS, m.StartTS)
	}
	if m.MaxRetries < 0 {
		return fmt.Errorf("migration.max_retries must not be negative")
	}
	if m.Resume && m.CheckpointFile == "" {
		return fmt.Errorf("migration.resume requires migration.checkpoint_file")
	}

	if len(c.Destinations) == 0 || len(c.Destinations) > 2 {
		return fmt.Errorf("expected one or two destinations, got %d", len(c.Destinations))
	}
	seen := map[string]bool{}
	for i, d := range c.Destinations {
		if d.Name == "" {
			return fmt.Errorf("destinations[%d].name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate destination name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// applyDefaults fills the values viper cannot default: the destinations
// list entries and names derived from position.
func (c *Config) applyDefaults() {
	if c.Log.Environment == "" {
		c.Log.Environment = c.Env
	}
	if c.Source.Name == "" {
		c.Source.Name = "source"
	}
	for i := range c.Destinations {
		d := &c.Destinations[i]
		if d.Name == "" {
			d.Name = fmt.Sprintf("destination-%d", i+1)
		}
		if d.Port == 0 {
			d.Port = 5432
		}
		if d.SSLMode == "" {
			d.SSLMode = "disable"
		}
	}
}

// Range returns the configured hour_timestamp window.
func (m MigrationConfig) Range() history.Range {
	return history.NewRange(m.StartTS, m.EndTS)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("migration.start_ts", 0)
	v.SetDefault("migration.end_ts", 0)
	v.SetDefault("migration.batch_size", 500)
	v.SetDefault("migration.mode", "ifAbsent")
	v.SetDefault("migration.pagination", "keyset")
	v.SetDefault("migration.batch_delay", time.Second)
	v.SetDefault("migration.query_timeout", 30*time.Second)
	v.SetDefault("migration.max_retries", 0)
	v.SetDefault("migration.retry_backoff", 2*time.Second)
	v.SetDefault("migration.checkpoint_file", "")
	v.SetDefault("migration.resume", false)
	v.SetDefault("migration.dump_dir", "")
	v.SetDefault("migration.strict_verify", false)

	// keys must be known for AutomaticEnv to reach them through Unmarshal
	v.SetDefault("source.name", "source")
	v.SetDefault("source.host", "localhost")
	v.SetDefault("source.port", 5432)
	v.SetDefault("source.user", "")
	v.SetDefault("source.password", "")
	v.SetDefault("source.dbname", "")
	v.SetDefault("source.sslmode", "disable")
	v.SetDefault("source.timezone", "UTC")
}

// flagKeys maps viper keys to command-line flag names.
var flagKeys = map[string]string{
	"migration.start_ts":        "start",
	"migration.end_ts":          "end",
	"migration.batch_size":      "batch-size",
	"migration.mode":            "mode",
	"migration.pagination":      "pagination",
	"migration.batch_delay":     "batch-delay",
	"migration.max_retries":     "max-retries",
	"migration.checkpoint_file": "checkpoint",
	"migration.resume":          "resume",
	"migration.dump_dir":        "dump-dir",
	"migration.strict_verify":   "strict-verify",
	"log.level":                 "log-level",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("migrator", pflag.ContinueOnError)
	fs.String("config", "", "path to config.yaml")
	fs.Int64("start", 0, "inclusive start hour_timestamp (epoch seconds)")
	fs.Int64("end", 0, "inclusive end hour_timestamp, 0 for unbounded")
	fs.Int("batch-size", 500, "rows per batch")
	fs.String("mode", "ifAbsent", "write mode: ifAbsent or orReplace")
	fs.String("pagination", "keyset", "page strategy: keyset or offset")
	fs.Duration("batch-delay", time.Second, "minimum delay between batches")
	fs.Int("max-retries", 0, "retries for a failed batch write")
	fs.String("checkpoint", "", "checkpoint file updated after every batch")
	fs.Bool("resume", false, "continue from the checkpoint file")
	fs.String("dump-dir", "", "directory receiving one .sql file per batch")
	fs.Bool("strict-verify", false, "exit non-zero when the verification count is short")
	fs.String("log-level", "info", "log level")
	return fs
}

// configDirs mirrors the collector layout: ../../config when run through
// go run, ../config next to the installed binary, and ./config.
func configDirs() []string {
	dirs := []string{"./config"}
	ex, err := os.Executable()
	if err != nil {
		return dirs
	}
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return append(dirs, filepath.Join(pwd, "../../config"))
	}
	return append(dirs, filepath.Join(filepath.Dir(ex), "../config"))
}

// loadDotenv reads ENV_FILE or ./.env without overriding variables that are
// already set. NO_DOTENV=1 disables it.
func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = godotenv.Load(envFile)
		return
	}
	_ = godotenv.Load()
}
