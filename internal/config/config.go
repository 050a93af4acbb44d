// Package config loads the single immutable Config value the Reconciler
// and its children are constructed with. Replaces the "global property
// bag" the design notes call out: nothing in this module reads an ambient
// properties singleton, everything takes a *Config explicitly.
package config

import (
	"fmt"

	"github.com/magiconair/properties"
)

// CastMode selects how the cast compiler (C2) renders extreme-magnitude
// numeric and float values.
type CastMode string

const (
	CastNotation CastMode = "notation"
	CastStandard CastMode = "standard"
)

// HashMethod selects raw vs. normalized casting (C2).
type HashMethod string

const (
	HashRaw        HashMethod = "raw"
	HashNormalized HashMethod = "normalized"
)

// SSLMode mirrors the connection parameter of the same name.
type SSLMode string

const (
	SSLDisable SSLMode = "disable"
	SSLPrefer  SSLMode = "prefer"
	SSLRequire SSLMode = "require"
)

// ConnParams is one side's (repo/source/target) connection configuration.
type ConnParams struct {
	Dialect  string
	Host     string
	Port     int
	Database string
	Schema   string
	User     string
	Password string
	SSLMode  SSLMode
}

// Config is the fully-resolved, immutable run configuration: the
// properties file merged with CLI flag overrides (config.Merge).
type Config struct {
	BatchFetchSize           int
	BatchCommitSize          int
	BatchProgressReportSize  int
	LoaderThreads            int
	MessageQueueSize         int
	FloatCast                CastMode
	NumberCast               CastMode
	ColumnHashMethod         HashMethod
	ObserverThrottle         bool
	ObserverThrottleSize     int64
	ObserverVacuum           bool
	DatabaseSort             bool
	Project                  int64
	LogDestination           string
	LogLevel                 string

	Repo   ConnParams
	Source ConnParams
	Target ConnParams
}

// Default returns the configuration defaults named or implied by spec §6.
func Default() Config {
	return Config{
		BatchFetchSize:          2000,
		BatchCommitSize:         2000,
		BatchProgressReportSize: 100000,
		LoaderThreads:           2,
		MessageQueueSize:        100,
		FloatCast:               CastStandard,
		NumberCast:              CastStandard,
		ColumnHashMethod:        HashNormalized,
		ObserverThrottle:        true,
		ObserverThrottleSize:    2_000_000,
		ObserverVacuum:          false,
		DatabaseSort:            false,
		LogDestination:          "stdout",
		LogLevel:                "info",
		Repo:                    ConnParams{Dialect: "postgres", SSLMode: SSLPrefer},
	}
}

// Load reads a properties file (magiconair/properties, the same flat
// key=value format spec §6's configuration table is expressed in) layered
// over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return cfg, fmt.Errorf("loading config %q: %w", path, err)
	}

	cfg.BatchFetchSize = props.GetInt("batch-fetch-size", cfg.BatchFetchSize)
	cfg.BatchCommitSize = props.GetInt("batch-commit-size", cfg.BatchCommitSize)
	cfg.BatchProgressReportSize = props.GetInt("batch-progress-report-size", cfg.BatchProgressReportSize)
	cfg.LoaderThreads = props.GetInt("loader-threads", cfg.LoaderThreads)
	cfg.MessageQueueSize = props.GetInt("message-queue-size", cfg.MessageQueueSize)
	cfg.FloatCast = CastMode(props.GetString("float-cast", string(cfg.FloatCast)))
	cfg.NumberCast = CastMode(props.GetString("number-cast", string(cfg.NumberCast)))
	cfg.ColumnHashMethod = HashMethod(props.GetString("column-hash-method", string(cfg.ColumnHashMethod)))
	cfg.ObserverThrottle = props.GetBool("observer-throttle", cfg.ObserverThrottle)
	cfg.ObserverThrottleSize = props.GetInt64("observer-throttle-size", cfg.ObserverThrottleSize)
	cfg.ObserverVacuum = props.GetBool("observer-vacuum", cfg.ObserverVacuum)
	cfg.DatabaseSort = props.GetBool("database-sort", cfg.DatabaseSort)
	cfg.Project = props.GetInt64("project", cfg.Project)
	cfg.LogDestination = props.GetString("log-destination", cfg.LogDestination)
	cfg.LogLevel = props.GetString("log-level", cfg.LogLevel)

	cfg.Repo = loadConn(props, "repo", cfg.Repo)
	cfg.Source = loadConn(props, "source", cfg.Source)
	cfg.Target = loadConn(props, "target", cfg.Target)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConn(props *properties.Properties, prefix string, base ConnParams) ConnParams {
	base.Dialect = props.GetString(prefix+"-type", base.Dialect)
	base.Host = props.GetString(prefix+"-host", base.Host)
	base.Port = props.GetInt(prefix+"-port", base.Port)
	base.Database = props.GetString(prefix+"-database", base.Database)
	base.Schema = props.GetString(prefix+"-schema", base.Schema)
	base.User = props.GetString(prefix+"-user", base.User)
	base.Password = props.GetString(prefix+"-password", base.Password)
	base.SSLMode = SSLMode(props.GetString(prefix+"-sslmode", string(base.SSLMode)))
	return base
}

// Validate reports a plain error for the combinations the
// reconciliation core cannot operate without. Kept intentionally small:
// the bulk of option validation lives with the CLI collaborator.
func (c Config) Validate() error {
	if c.LoaderThreads < 0 {
		return fmt.Errorf("loader-threads must be >= 0, got %d", c.LoaderThreads)
	}
	if c.MessageQueueSize <= 0 {
		return fmt.Errorf("message-queue-size must be > 0, got %d", c.MessageQueueSize)
	}
	if c.BatchFetchSize <= 0 {
		return fmt.Errorf("batch-fetch-size must be > 0, got %d", c.BatchFetchSize)
	}
	switch c.ColumnHashMethod {
	case HashRaw, HashNormalized:
	default:
		return fmt.Errorf("column-hash-method must be raw or normalized, got %q", c.ColumnHashMethod)
	}
	return nil
}

// Overrides are the CLI-flag-sourced values passed to Merge. Only Project
// has a Config field; it takes precedence over the properties file,
// mirroring database.MergeGeneratorConfig's "non-zero field wins" merge
// semantics. Batch and Table are carried here but Merge does not apply
// them.
type Overrides struct {
	Project  *int64
	Batch    *int64
	Table    *string
}

// Merge applies the Project override onto a loaded Config.
func Merge(base Config, o Overrides) Config {
	if o.Project != nil {
		base.Project = *o.Project
	}
	return base
}
