// Command pgcompare reconciles a source and target table pair across
// heterogeneous database engines by comparing parallel content-addressed
// row fingerprints staged in a Postgres repository. Grounded on the
// teacher's cmd/psqldef/psqldef.go: a jessevdk/go-flags option struct,
// fatal option errors via log, and a thin main() that hands parsed
// options to the package doing the real work.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	flags "github.com/jessevdk/go-flags"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
	"pgcompare/internal/discover"
	"pgcompare/internal/logging"
	"pgcompare/internal/model"
	"pgcompare/internal/recheck"
	"pgcompare/internal/reconcile"
	"pgcompare/internal/repo"
	"pgcompare/internal/report"
)

const (
	exitOK            = 0
	exitConfigError   = 1
	exitOutOfSync     = 2
)

type options struct {
	ConfigFile string `short:"c" long:"config" description:"Properties file to load" value-name:"path"`
	Batch      *int64 `long:"batch" description:"batch_nbr to restrict this run to"`
	Project    *int64 `long:"project" description:"project id to restrict this run to"`
	Table      string `long:"table" description:"single table alias to restrict this run to, or the source alias for copy-table"`
	NewAlias   string `long:"new-alias" description:"destination alias for copy-table" value-name:"alias"`
	Report     string `long:"report" description:"write an HTML run summary to this path" value-name:"file"`
	Bootstrap  string `long:"bootstrap" description:"YAML saved table-set file applied on top of discover's defaults" value-name:"path"`

	Args struct {
		Action string `positional-arg-name:"action" description:"init|discover|compare|check|copy-table"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[options] <init|discover|compare|check|copy-table>"
	if _, err := parser.ParseArgs(args); err != nil {
		return exitConfigError
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	cfg = config.Merge(cfg, config.Overrides{Project: opts.Project, Batch: opts.Batch, Table: &opts.Table})

	closer, err := logging.Init(cfg.LogDestination, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	defer closer.Close()
	// session_id tags every line logged through logger, the way a
	// loader's correlation_id ties a batch's rows back to one run. The
	// per-table loggers built by logging.ForTable start from slog.Default
	// and do not carry it.
	logger := slog.Default().With("session_id", uuid.New().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("shutdown requested, draining in-flight work")
		cancel()
	}()

	filter := entryFilter{alias: opts.Table}
	if opts.Batch != nil {
		filter.batch = *opts.Batch
		filter.hasBatch = true
	}

	switch opts.Args.Action {
	case "init":
		return runInit(ctx, cfg, logger)
	case "discover":
		return runDiscover(ctx, cfg, logger, opts.Bootstrap)
	case "compare":
		return runCompare(ctx, cfg, logger, opts.Report, filter)
	case "check":
		return runCheck(ctx, cfg, logger, opts.Report, filter)
	case "copy-table":
		return runCopyTable(ctx, cfg, logger, opts.Table, opts.NewAlias)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", opts.Args.Action)
		return exitConfigError
	}
}

// entryFilter narrows the TableEntry set a compare/check run operates on,
// matching the CLI's --table and --batch flags.
type entryFilter struct {
	alias    string
	batch    int64
	hasBatch bool
}

func (f entryFilter) matches(e model.TableEntry) bool {
	if f.alias != "" && !strings.EqualFold(e.Alias, f.alias) {
		return false
	}
	if f.hasBatch && e.BatchNbr != f.batch {
		return false
	}
	return true
}

func filterEntries(entries []model.TableEntry, f entryFilter) []model.TableEntry {
	if f.alias == "" && !f.hasBatch {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// openDB opens a *sql.DB for a ConnParams using the driver its dialect
// names. Connection-pool TUNING (pool size, lifetime, retry policy) is
// the out-of-scope external collaborator spec §1 names; this is just
// enough wiring — sql.Open plus a Ping — to hand the rest of the module
// a live *sql.DB, which is all C1/C4/C8 ever ask for.
func openDB(p config.ConnParams) (*sql.DB, error) {
	var driverName, dsn string
	switch p.Dialect {
	case "postgres":
		driverName = "postgres"
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
	case "mysql", "mariadb":
		driverName = "mysql"
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", p.User, p.Password, p.Host, p.Port, p.Database)
	case "mssql":
		driverName = "sqlserver"
		dsn = fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s", p.User, p.Password, p.Host, p.Port, p.Database)
	default:
		return nil, fmt.Errorf("no in-module driver for dialect %q; connection-pool construction for this engine is an external collaborator", p.Dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRepo(ctx context.Context, cfg config.Config) (*repo.Repo, error) {
	return repo.Open(ctx, cfg.Repo)
}

func runInit(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	logger.Info("init is an external collaborator (repository DDL creation) — create the dc_* repository tables before running discover/compare")
	return exitOK
}

func runDiscover(ctx context.Context, cfg config.Config, logger *slog.Logger, bootstrapPath string) int {
	r, err := openRepo(ctx, cfg)
	if err != nil {
		logger.Error("repo connect failed", "error", err)
		return exitConfigError
	}
	defer r.Close()

	sourceDB, err := openDB(cfg.Source)
	if err != nil {
		logger.Error("source connect failed", "error", err)
		return exitConfigError
	}
	defer sourceDB.Close()

	targetDB, err := openDB(cfg.Target)
	if err != nil {
		logger.Error("target connect failed", "error", err)
		return exitConfigError
	}
	defer targetDB.Close()

	sourceDialect, err := dialect.Get(cfg.Source.Dialect)
	if err != nil {
		logger.Error("unknown source dialect", "error", err)
		return exitConfigError
	}
	targetDialect, err := dialect.Get(cfg.Target.Dialect)
	if err != nil {
		logger.Error("unknown target dialect", "error", err)
		return exitConfigError
	}

	var bootstrap discover.Bootstrap
	if bootstrapPath != "" {
		bootstrap, err = discover.LoadBootstrap(bootstrapPath)
		if err != nil {
			logger.Error("bootstrap file load failed", "error", err)
			return exitConfigError
		}
	}

	nextTID := int64(0)
	d := &discover.Discoverer{
		Repo: r, SourceDB: sourceDB, TargetDB: targetDB,
		SourceDialect: sourceDialect, TargetDialect: targetDialect,
		SourceSchema: cfg.Source.Schema, TargetSchema: cfg.Target.Schema,
		Project: cfg.Project, Cfg: cfg, Logger: logger,
		Bootstrap: bootstrap,
	}
	entries, err := d.Run(ctx, func() int64 { nextTID++; return nextTID })
	if err != nil {
		logger.Error("discover failed", "error", err)
		return exitConfigError
	}
	logger.Info("discover complete", "tables", len(entries))
	return exitOK
}

func runCompare(ctx context.Context, cfg config.Config, logger *slog.Logger, reportPath string, filter entryFilter) int {
	r, err := openRepo(ctx, cfg)
	if err != nil {
		logger.Error("repo connect failed", "error", err)
		return exitConfigError
	}
	defer r.Close()

	sourceDB, err := openDB(cfg.Source)
	if err != nil {
		logger.Error("source connect failed", "error", err)
		return exitConfigError
	}
	defer sourceDB.Close()

	targetDB, err := openDB(cfg.Target)
	if err != nil {
		logger.Error("target connect failed", "error", err)
		return exitConfigError
	}
	defer targetDB.Close()

	entries, err := r.LoadTableEntries(ctx, cfg.Project)
	if err != nil {
		logger.Error("load table entries failed", "error", err)
		return exitConfigError
	}
	entries = filterEntries(entries, filter)

	rc := &reconcile.Reconciler{Repo: r, SourceDB: sourceDB, TargetDB: targetDB, Cfg: cfg, Logger: logger}
	summary := report.Summary{Project: cfg.Project, StartedAt: time.Now()}

	outOfSync := false
	for _, e := range entries {
		tableLogger := logging.ForTable(e.TID, e.Alias)
		rc.Logger = tableLogger
		summary.BatchNbr = e.BatchNbr

		hist, err := rc.Run(ctx, e)
		if err != nil {
			tableLogger.Error("reconcile failed", "error", err)
			continue
		}
		if hist.NotEqual > 0 || hist.MissingSrc > 0 || hist.MissingTgt > 0 {
			outOfSync = true
		}
		summary.Tables = append(summary.Tables, report.FromRunHistory(e.Alias, hist))
	}

	if reportPath != "" {
		if err := writeReport(reportPath, summary); err != nil {
			logger.Warn("report write failed", "error", err)
		}
	}

	if outOfSync {
		return exitOutOfSync
	}
	return exitOK
}

func runCheck(ctx context.Context, cfg config.Config, logger *slog.Logger, reportPath string, filter entryFilter) int {
	r, err := openRepo(ctx, cfg)
	if err != nil {
		logger.Error("repo connect failed", "error", err)
		return exitConfigError
	}
	defer r.Close()

	sourceDB, err := openDB(cfg.Source)
	if err != nil {
		logger.Error("source connect failed", "error", err)
		return exitConfigError
	}
	defer sourceDB.Close()

	targetDB, err := openDB(cfg.Target)
	if err != nil {
		logger.Error("target connect failed", "error", err)
		return exitConfigError
	}
	defer targetDB.Close()

	sourceDialect, err := dialect.Get(cfg.Source.Dialect)
	if err != nil {
		logger.Error("unknown source dialect", "error", err)
		return exitConfigError
	}
	targetDialect, err := dialect.Get(cfg.Target.Dialect)
	if err != nil {
		logger.Error("unknown target dialect", "error", err)
		return exitConfigError
	}

	entries, err := r.LoadTableEntries(ctx, cfg.Project)
	if err != nil {
		logger.Error("load table entries failed", "error", err)
		return exitConfigError
	}
	entries = filterEntries(entries, filter)

	summary := report.Summary{Project: cfg.Project, StartedAt: time.Now()}
	stillOutOfSync := false

	for _, e := range entries {
		tableLogger := logging.ForTable(e.TID, e.Alias)
		summary.BatchNbr = e.BatchNbr

		sourceMap, targetMap, err := r.LoadTableMap(ctx, e.TID)
		if err != nil {
			tableLogger.Error("load table map failed", "error", err)
			continue
		}
		cm, err := r.LoadColumnMap(ctx, e.TID)
		if err != nil {
			tableLogger.Error("load column map failed", "error", err)
			continue
		}
		persisted, err := r.LoadFindings(ctx, e.TID)
		if err != nil {
			tableLogger.Error("load findings failed", "error", err)
			continue
		}
		if len(persisted) == 0 {
			continue
		}

		rk := &recheck.Rechecker{
			SourceDB: sourceDB, TargetDB: targetDB,
			SourceDialect: sourceDialect, TargetDialect: targetDialect,
			SourceMap: sourceMap, TargetMap: targetMap,
			ColumnMap: cm, Logger: tableLogger,
		}
		findings := make([]recheck.Finding, len(persisted))
		for i, f := range persisted {
			findings[i] = recheck.Finding{TID: f.TID, Side: f.Side, PK: f.PK, Status: f.Status}
		}
		outcomes, err := rk.Run(ctx, findings)
		if err != nil {
			tableLogger.Error("recheck failed", "error", err)
			continue
		}

		for _, outcome := range outcomes {
			if outcome != model.OutcomeResolved {
				stillOutOfSync = true
			}
		}
		section := report.FromRunHistory(e.Alias, model.RunHistory{TID: e.TID, BatchNbr: e.BatchNbr}).WithRecheck(outcomes)
		summary.Tables = append(summary.Tables, section)
	}

	if reportPath != "" {
		if err := writeReport(reportPath, summary); err != nil {
			logger.Warn("report write failed", "error", err)
		}
	}

	if stillOutOfSync {
		return exitOutOfSync
	}
	return exitOK
}

// runCopyTable duplicates an existing TableEntry/TableMap/ColumnMap triple
// (selected by --table, the source alias) under --new-alias. Binds the
// supplied alias directly into the new row rather than constructing then
// discarding it — the fix for the bind-list bug spec §9's Open Question
// describes (decided in SPEC_FULL.md §12: apply the constructed binds).
func runCopyTable(ctx context.Context, cfg config.Config, logger *slog.Logger, sourceAlias, newAlias string) int {
	if sourceAlias == "" || newAlias == "" {
		logger.Error("copy-table requires both --table <source alias> and --new-alias <destination alias>")
		return exitConfigError
	}

	r, err := openRepo(ctx, cfg)
	if err != nil {
		logger.Error("repo connect failed", "error", err)
		return exitConfigError
	}
	defer r.Close()

	entries, err := r.LoadTableEntries(ctx, cfg.Project)
	if err != nil {
		logger.Error("load table entries failed", "error", err)
		return exitConfigError
	}

	var src *model.TableEntry
	var maxTID int64
	for i, e := range entries {
		if e.TID > maxTID {
			maxTID = e.TID
		}
		if strings.EqualFold(e.Alias, sourceAlias) {
			src = &entries[i]
		}
	}
	if src == nil {
		logger.Error("copy-table: no such source alias", "alias", sourceAlias)
		return exitConfigError
	}
	for _, e := range entries {
		if strings.EqualFold(e.Alias, newAlias) {
			logger.Error("copy-table: new alias already in use", "alias", newAlias)
			return exitConfigError
		}
	}

	sourceMap, targetMap, err := r.LoadTableMap(ctx, src.TID)
	if err != nil {
		logger.Error("load table map failed", "error", err)
		return exitConfigError
	}
	cm, err := r.LoadColumnMap(ctx, src.TID)
	if err != nil {
		logger.Error("load column map failed", "error", err)
		return exitConfigError
	}

	newTID := maxTID + 1
	newEntry := model.TableEntry{
		TID: newTID, Project: src.Project, Alias: newAlias,
		Enabled: src.Enabled, BatchNbr: src.BatchNbr, ParallelDegree: src.ParallelDegree,
	}
	sourceMap.TID, targetMap.TID = newTID, newTID
	cm.TID = newTID

	if err := r.SaveTableEntry(ctx, newEntry); err != nil {
		logger.Error("save copied table entry failed", "error", err)
		return exitConfigError
	}
	if err := r.SaveTableMap(ctx, sourceMap, targetMap); err != nil {
		logger.Error("save copied table map failed", "error", err)
		return exitConfigError
	}
	if err := r.SaveColumnMap(ctx, cm); err != nil {
		logger.Error("save copied column map failed", "error", err)
		return exitConfigError
	}

	logger.Info("copy-table complete", "source", sourceAlias, "new_alias", newAlias, "tid", newTID)
	return exitOK
}

func writeReport(path string, s report.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.Write(f, s)
}
