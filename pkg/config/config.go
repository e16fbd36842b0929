package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/filter"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// Evaluation modes for scans.
const (
	EvaluationPushdown = "pushdown" // frequencies computed by the datasource
	EvaluationLocal    = "local"    // sample fetched and rules applied in process
)

// Config holds all configuration for ekaya-discover.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Default scan options; API and MCP requests override them per call.
	Scan ScanConfig `yaml:"scan"`

	// CustomRulesPath points at a YAML rule pack loaded next to the built-in rules.
	CustomRulesPath string `yaml:"custom_rules_path" env:"CUSTOM_RULES_PATH" env-default:""`

	// Datasources are the catalogs available to scan. The entry name is the catalog name.
	Datasources []DatasourceEntry `yaml:"datasources"`

	// Datasource connection pool settings
	Datasource DatasourceConfig `yaml:"datasource"`

	// Results persistence (optional)
	Results ResultsConfig `yaml:"results"`
}

// ScanConfig holds the default scan options.
type ScanConfig struct {
	Catalogs  string   `yaml:"catalogs" env:"SCAN_CATALOGS" env-default:"*"`
	Databases string   `yaml:"databases" env:"SCAN_DATABASES" env-default:"*"`
	Tables    string   `yaml:"tables" env:"SCAN_TABLES" env-default:"*"`
	Rules     []string `yaml:"rules" env:"SCAN_RULES" env-separator:"," env-default:"*"`

	// SampleSize bounds the rows read per table. A zero value takes the default, so a
	// full table scan is requested with FullScan instead.
	SampleSize int  `yaml:"sample_size" env:"SCAN_SAMPLE_SIZE" env-default:"10000"`
	FullScan   bool `yaml:"full_scan" env:"SCAN_FULL_SCAN" env-default:"false"`
	DryRun     bool `yaml:"dry_run" env:"SCAN_DRY_RUN" env-default:"false"`

	Threshold            float64 `yaml:"column_type_classification_threshold" env:"SCAN_CLASSIFICATION_THRESHOLD" env-default:"0.95"`
	ClassificationPolicy string  `yaml:"classification_policy" env:"SCAN_CLASSIFICATION_POLICY" env-default:"all"`
	Evaluation           string  `yaml:"evaluation" env:"SCAN_EVALUATION" env-default:"pushdown"`

	Workers      int           `yaml:"workers" env:"SCAN_WORKERS" env-default:"4"`
	TableTimeout time.Duration `yaml:"table_timeout" env:"SCAN_TABLE_TIMEOUT" env-default:"5m"`

	// AllowRuleOverride lets custom rules replace built-in rules of the same name.
	AllowRuleOverride bool `yaml:"allow_rule_override" env:"SCAN_ALLOW_RULE_OVERRIDE" env-default:"false"`

	// Tag-based selection: only objects at TagLevel carrying one of Tags are scanned.
	TagLevel string   `yaml:"tag_level" env:"SCAN_TAG_LEVEL" env-default:"table"`
	Tags     []string `yaml:"tags" env:"SCAN_TAGS" env-separator:","`
}

// SampleSizePtr returns nil for a full scan, otherwise a pointer to SampleSize.
func (s ScanConfig) SampleSizePtr() *int {
	if s.FullScan || s.SampleSize <= 0 {
		return nil
	}
	n := s.SampleSize
	return &n
}

// DatasourceEntry is one scannable catalog.
type DatasourceEntry struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"` // "postgres", "mssql"
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	User        string            `yaml:"user"`
	PasswordEnv string            `yaml:"password_env"` // name of the env var holding the password
	Database    string            `yaml:"database"`
	SSLMode     string            `yaml:"ssl_mode"`
	Options     map[string]string `yaml:"options"`
	// Tags are catalog-level tags used when scan.tag_level is "catalog".
	Tags []string `yaml:"tags"`
}

// ConnectionMap returns the generic config map adapters read, with the password
// resolved from PasswordEnv and loopback hosts rewritten when running in Docker.
func (d DatasourceEntry) ConnectionMap() map[string]any {
	m := map[string]any{
		"host":     ResolveHostForDocker(d.Host),
		"user":     d.User,
		"database": d.Database,
	}
	if d.Port > 0 {
		m["port"] = d.Port
	}
	if d.PasswordEnv != "" {
		m["password"] = os.Getenv(d.PasswordEnv)
	}
	if d.SSLMode != "" {
		m["ssl_mode"] = d.SSLMode
	}
	if len(d.Options) > 0 {
		m["options"] = d.Options
	}
	return m
}

// DatasourceModels converts the configured entries into datasources, in file order.
func (c *Config) DatasourceModels() []*models.Datasource {
	out := make([]*models.Datasource, 0, len(c.Datasources))
	for _, d := range c.Datasources {
		out = append(out, &models.Datasource{
			Name:           d.Name,
			DatasourceType: d.Type,
			Config:         d.ConnectionMap(),
			Tags:           d.Tags,
		})
	}
	return out
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per datasource pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
	// MaxConnIdleMinutes closes pooled connections idle for longer.
	MaxConnIdleMinutes int `yaml:"max_conn_idle_minutes" env:"DATASOURCE_MAX_CONN_IDLE_MINUTES" env-default:"5"`
}

// ResultsConfig controls persistence of classifications.
type ResultsConfig struct {
	Enabled  bool           `yaml:"enabled" env:"RESULTS_ENABLED" env-default:"false"`
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath overrides the migrations embedded in the binary.
	MigrationsPath string `yaml:"migrations_path" env:"RESULTS_MIGRATIONS_PATH" env-default:""`
}

// DatabaseConfig holds the PostgreSQL database that stores classifications.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_discover"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Load reads configuration from the YAML file at path with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every option that would otherwise fail mid-scan.
// All failures are *apperrors.ConfigurationError.
func (c *Config) Validate() error {
	s := c.Scan

	if s.Threshold < 0 || s.Threshold > 1 {
		return apperrors.NewConfigurationError("scan.column_type_classification_threshold",
			fmt.Errorf("%w: %v is outside [0, 1]", apperrors.ErrInvalidThreshold, s.Threshold))
	}
	if _, err := models.ParseClassificationPolicy(s.ClassificationPolicy); err != nil {
		return apperrors.NewConfigurationError("scan.classification_policy", err)
	}
	if s.Evaluation != EvaluationPushdown && s.Evaluation != EvaluationLocal {
		return apperrors.NewConfigurationError("scan.evaluation",
			fmt.Errorf("unknown mode %q (want %s or %s)", s.Evaluation, EvaluationPushdown, EvaluationLocal))
	}
	if s.SampleSize < 0 {
		return apperrors.NewConfigurationError("scan.sample_size", errors.New("must be >= 0 (0 scans the full table)"))
	}
	if s.Workers < 1 {
		return apperrors.NewConfigurationError("scan.workers", errors.New("must be >= 1"))
	}
	if s.TableTimeout < 0 {
		return apperrors.NewConfigurationError("scan.table_timeout", errors.New("must not be negative"))
	}
	for field, expr := range map[string]string{
		"scan.catalogs":  s.Catalogs,
		"scan.databases": s.Databases,
		"scan.tables":    s.Tables,
	} {
		if _, err := filter.Parse(expr); err != nil {
			return apperrors.NewConfigurationError(field, err)
		}
	}
	if len(s.Tags) > 0 {
		if _, err := datasource.ParseTagLevel(s.TagLevel); err != nil {
			return apperrors.NewConfigurationError("scan.tag_level", err)
		}
	}

	seen := make(map[string]bool, len(c.Datasources))
	for i, ds := range c.Datasources {
		field := fmt.Sprintf("datasources[%d]", i)
		if strings.TrimSpace(ds.Name) == "" {
			return apperrors.NewConfigurationError(field+".name", errors.New("is required"))
		}
		key := strings.ToLower(ds.Name)
		if seen[key] {
			return apperrors.NewConfigurationError(field+".name", fmt.Errorf("duplicate datasource %q", ds.Name))
		}
		seen[key] = true
		if ds.Type == "" {
			return apperrors.NewConfigurationError(field+".type", errors.New("is required"))
		}
		if ds.PasswordEnv != "" {
			if _, ok := os.LookupEnv(ds.PasswordEnv); !ok {
				return apperrors.NewConfigurationError(field+".password_env",
					fmt.Errorf("environment variable %s is not set", ds.PasswordEnv))
			}
		}
	}

	return nil
}

// DatasourceByName returns the datasource entry for a catalog name (case-insensitive).
func (c *Config) DatasourceByName(name string) (DatasourceEntry, bool) {
	for _, ds := range c.Datasources {
		if strings.EqualFold(ds.Name, name) {
			return ds, true
		}
	}
	return DatasourceEntry{}, false
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}
