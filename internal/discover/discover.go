// Package discover implements the `discover` action: scanning a side's
// schema via the C1 dialect adapters and writing dc_table/dc_table_map/
// dc_table_column_map rows for every table found on both source and
// target. Named out of scope in spec §1 as a separate use of the same
// mapping facilities C1-C3 already provide; this package is that reuse,
// not a new metadata format.
package discover

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pgcompare/internal/columnmap"
	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
	"pgcompare/internal/model"
)

// BootstrapEntry overrides a discovered TableEntry's defaults for one
// alias. Any zero field is left at discover's usual default.
type BootstrapEntry struct {
	Alias          string `yaml:"alias"`
	TableFilter    string `yaml:"table_filter"`
	ParallelDegree int    `yaml:"parallel_degree"`
	BatchNbr       int64  `yaml:"batch_nbr"`
}

// Bootstrap is a saved table-set file: a hand-curated list of aliases
// (with optional per-table overrides) that discover applies on top of
// what it finds on both sides, keyed by lowercase alias.
type Bootstrap map[string]BootstrapEntry

// LoadBootstrap reads a YAML bootstrap file (a list of BootstrapEntry
// values). A discover run with no --bootstrap flag never calls this;
// nil Bootstrap leaves every discovered table at its plain default.
func LoadBootstrap(path string) (Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("discover: read bootstrap file: %w", err)
	}

	var entries []BootstrapEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("discover: parse bootstrap file: %w", err)
	}

	b := make(Bootstrap, len(entries))
	for _, e := range entries {
		b[strings.ToLower(e.Alias)] = e
	}
	return b, nil
}

// Repo is the subset of *repo.Repo discovery needs to persist what it
// finds.
type Repo interface {
	SaveTableEntry(ctx context.Context, e model.TableEntry) error
	SaveTableMap(ctx context.Context, source, target model.TableMap) error
	SaveColumnMap(ctx context.Context, cm model.ColumnMap) error
}

// Discoverer scans matching tables (by case-insensitive name) present on
// both sides and persists a TableEntry/TableMap/ColumnMap triple for
// each.
type Discoverer struct {
	Repo                         Repo
	SourceDB, TargetDB           *sql.DB
	SourceDialect, TargetDialect dialect.Dialect
	SourceSchema, TargetSchema   string
	Project                      int64
	Cfg                          config.Config
	Logger                       *slog.Logger

	// Bootstrap, when non-nil, overrides table_filter/parallel_degree/
	// batch_nbr for matching aliases instead of discover's plain
	// defaults. Optional: a nil Bootstrap changes nothing.
	Bootstrap Bootstrap
}

// Run scans both schemas and persists one TableEntry per table present
// on both sides; tables present on only one side are logged and skipped,
// since a reconciliation needs a pair.
func (d *Discoverer) Run(ctx context.Context, nextTID func() int64) ([]model.TableEntry, error) {
	sourceTables, err := d.SourceDialect.SelectTables(d.SourceDB, d.SourceSchema)
	if err != nil {
		return nil, fmt.Errorf("discover: select source tables: %w", err)
	}
	targetTables, err := d.TargetDialect.SelectTables(d.TargetDB, d.TargetSchema)
	if err != nil {
		return nil, fmt.Errorf("discover: select target tables: %w", err)
	}

	targetByName := make(map[string]dialect.TableInfo, len(targetTables))
	for _, t := range targetTables {
		targetByName[strings.ToLower(t.TableName)] = t
	}

	var out []model.TableEntry
	for _, src := range sourceTables {
		tgt, ok := targetByName[strings.ToLower(src.TableName)]
		if !ok {
			d.Logger.Warn("table present on source only, skipped", "table", src.TableName)
			continue
		}

		entry, err := d.discoverTable(ctx, nextTID(), src, tgt)
		if err != nil {
			d.Logger.Warn("discover failed for table", "table", src.TableName, "error", err)
			continue
		}
		out = append(out, entry)
	}

	for _, tgt := range targetTables {
		if _, ok := findByName(sourceTables, tgt.TableName); !ok {
			d.Logger.Warn("table present on target only, skipped", "table", tgt.TableName)
		}
	}

	return out, nil
}

func findByName(tables []dialect.TableInfo, name string) (dialect.TableInfo, bool) {
	for _, t := range tables {
		if strings.EqualFold(t.TableName, name) {
			return t, true
		}
	}
	return dialect.TableInfo{}, false
}

func (d *Discoverer) discoverTable(ctx context.Context, tid int64, src, tgt dialect.TableInfo) (model.TableEntry, error) {
	sourceCols, err := d.SourceDialect.SelectColumns(d.SourceDB, src.Owner, src.TableName)
	if err != nil {
		return model.TableEntry{}, err
	}
	targetCols, err := d.TargetDialect.SelectColumns(d.TargetDB, tgt.Owner, tgt.TableName)
	if err != nil {
		return model.TableEntry{}, err
	}

	cm, _, _, err := columnmap.Compile(tid, d.SourceDialect, d.TargetDialect, sourceCols, targetCols, d.Cfg, d.Logger)
	if err != nil {
		return model.TableEntry{}, err
	}

	entry := model.TableEntry{TID: tid, Project: d.Project, Alias: strings.ToLower(src.TableName), Enabled: true, ParallelDegree: 1}
	sourceMap := model.TableMap{TID: tid, Origin: model.SideSource, SchemaName: src.Owner, TableName: src.TableName}
	targetMap := model.TableMap{TID: tid, Origin: model.SideTarget, SchemaName: tgt.Owner, TableName: tgt.TableName}

	if override, ok := d.Bootstrap[entry.Alias]; ok {
		if override.ParallelDegree > 0 {
			entry.ParallelDegree = override.ParallelDegree
		}
		if override.BatchNbr > 0 {
			entry.BatchNbr = override.BatchNbr
		}
		if override.TableFilter != "" {
			sourceMap.TableFilter = override.TableFilter
			targetMap.TableFilter = override.TableFilter
		}
	}

	if err := d.Repo.SaveTableEntry(ctx, entry); err != nil {
		return model.TableEntry{}, err
	}
	if err := d.Repo.SaveTableMap(ctx, sourceMap, targetMap); err != nil {
		return model.TableEntry{}, err
	}
	if err := d.Repo.SaveColumnMap(ctx, cm); err != nil {
		return model.TableEntry{}, err
	}
	return entry, nil
}
