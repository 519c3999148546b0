// Package pipeline runs the ETL stages that turn a metrics workbook into a
// queryable store: normalize (xlsx to CSV), materialize (CSV to JSON schemas
// and instances) and load (instances into the relational store).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/devbench/internal/artifact"
	"github.com/leapstack-labs/devbench/internal/instance"
	"github.com/leapstack-labs/devbench/internal/schema"
	"github.com/leapstack-labs/devbench/internal/sheet"
	"github.com/leapstack-labs/devbench/internal/store"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// WorkbookEnv is the legacy environment variable naming the workbook.
const WorkbookEnv = "RAG_TAB_PATH"

const workbookExt = ".xlsx"

// Config configures a Pipeline.
type Config struct {
	// Workbook is the path of the metrics workbook.
	Workbook string
	// DataDir receives the intermediate files. Defaults to the workbook's
	// directory.
	DataDir string
	// Target is the store to load into. An empty DSN for a single-file
	// target defaults to a database next to the workbook.
	Target store.Config
	// Debounce is how long Watch waits for writes to settle.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Pipeline runs ETL stages. Stages are serialized; a Pipeline is safe to
// share between a watcher and direct callers.
type Pipeline struct {
	workbook string
	layout   artifact.Layout
	target   store.Config
	debounce time.Duration
	logger   *slog.Logger

	mu sync.Mutex
}

// New validates the configuration and creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := ValidateWorkbook(cfg.Workbook); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Dir(cfg.Workbook)
	}

	target := cfg.Target
	if target.Type == "" {
		target.Type = store.SQLite
	}
	if target.DSN == "" {
		if target.Type == store.Postgres {
			return nil, &core.ConfigError{Key: "target.dsn", Reason: "a connection string is required for postgres"}
		}
		target.DSN = DefaultDatabase(cfg.Workbook, target.Type)
	}
	if target.Logger == nil {
		target.Logger = logger
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Pipeline{
		workbook: cfg.Workbook,
		layout:   artifact.Layout{Root: dataDir},
		target:   target,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// ValidateWorkbook checks that path names an existing .xlsx file.
func ValidateWorkbook(path string) error {
	if path == "" {
		return &core.ConfigError{Key: WorkbookEnv, Reason: "workbook path is not set"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &core.ConfigError{Key: WorkbookEnv, Path: path, Reason: "workbook not found", Err: err}
	}
	if !info.Mode().IsRegular() {
		return &core.ConfigError{Key: WorkbookEnv, Path: path, Reason: "workbook is not a regular file"}
	}
	if !strings.EqualFold(filepath.Ext(path), workbookExt) {
		return &core.ConfigError{Key: WorkbookEnv, Path: path, Reason: "workbook must be an " + workbookExt + " file"}
	}
	return nil
}

// DefaultDatabase returns the single-file database next to the workbook,
// named after the workbook's stem.
func DefaultDatabase(workbook, targetType string) string {
	ext := ".sqlite3"
	if targetType == store.DuckDB {
		ext = ".duckdb"
	}
	stem := strings.TrimSuffix(filepath.Base(workbook), filepath.Ext(workbook))
	return filepath.Join(filepath.Dir(workbook), stem+ext)
}

// Layout returns the artifact layout of the data directory.
func (p *Pipeline) Layout() artifact.Layout {
	return p.layout
}

// Target returns the resolved store configuration.
func (p *Pipeline) Target() store.Config {
	return p.target
}

// Workbook returns the workbook path.
func (p *Pipeline) Workbook() string {
	return p.workbook
}

// PhaseReport summarizes what one run did for a phase.
type PhaseReport struct {
	Phase     core.Phase
	CSV       string
	Schema    string
	Instances []string
	Run       *store.IngestRun
}

// Report summarizes a run, one entry per phase touched, in lifecycle order.
type Report struct {
	Phases []*PhaseReport
}

func (r *Report) phase(p core.Phase) *PhaseReport {
	for _, pr := range r.Phases {
		if pr.Phase == p {
			return pr
		}
	}
	pr := &PhaseReport{Phase: p}
	r.Phases = append(r.Phases, pr)
	return pr
}

// Records returns the number of records loaded across phases.
func (r *Report) Records() int {
	n := 0
	for _, pr := range r.Phases {
		if pr.Run != nil {
			n += pr.Run.Records
		}
	}
	return n
}

// Run executes all three stages.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	report := &Report{}
	if err := p.normalize(ctx, report); err != nil {
		return report, err
	}
	if err := p.materialize(ctx, report, phasesOf(report)); err != nil {
		return report, err
	}
	if err := p.load(ctx, report); err != nil {
		return report, err
	}
	p.logger.Info("etl complete",
		slog.Int("phases", len(report.Phases)),
		slog.Int("records", report.Records()),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

// Normalize flattens the workbook's phase sheets to CSV. With no phases
// given, every phase sheet present in the workbook is converted; a phase
// asked for explicitly must have a sheet.
func (p *Pipeline) Normalize(ctx context.Context, phases ...core.Phase) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	report := &Report{}
	return report, p.normalize(ctx, report, phases...)
}

// Materialize synthesizes the schema of each phase CSV and writes its
// instances. With no phases given, every phase with a CSV file is done.
func (p *Pipeline) Materialize(ctx context.Context, phases ...core.Phase) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	report := &Report{}
	return report, p.materialize(ctx, report, phases)
}

// Load rebuilds the store and populates it from every phase with a schema.
func (p *Pipeline) Load(ctx context.Context) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	report := &Report{}
	return report, p.load(ctx, report)
}

func (p *Pipeline) normalize(ctx context.Context, report *Report, phases ...core.Phase) error {
	wb, err := sheet.OpenWorkbook(p.workbook)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()

	explicit := len(phases) > 0
	if !explicit {
		phases = core.Phases()
	}

	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := wb.Phase(ph)
		if errors.Is(err, sheet.ErrSheetNotFound) && !explicit {
			p.logger.Warn("skipping phase without sheet", slog.String("sheet", ph.Short()))
			continue
		}
		if err != nil {
			return err
		}

		path := p.layout.CSVPath(ph)
		if err := writeCSV(path, t); err != nil {
			return err
		}
		p.logger.Info("created", slog.String("path", path))
		report.phase(ph).CSV = path
	}

	if len(report.Phases) == 0 {
		return &core.ConfigError{
			Key:    WorkbookEnv,
			Path:   p.workbook,
			Reason: "workbook has no phase sheets",
		}
	}
	return nil
}

func writeCSV(path string, t *sheet.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := sheet.WriteCSV(f, t); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func readCSV(path string, ph core.Phase) (*sheet.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	t, err := sheet.ReadCSV(f, ph)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}

func (p *Pipeline) materialize(ctx context.Context, report *Report, phases []core.Phase) error {
	explicit := len(phases) > 0
	if !explicit {
		phases = core.Phases()
	}

	done := 0
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := p.layout.CSVPath(ph)
		t, err := readCSV(path, ph)
		if errors.Is(err, os.ErrNotExist) {
			if explicit {
				return &core.ConfigError{Path: path, Reason: fmt.Sprintf("no CSV for phase %s; run normalize first", ph.Short()), Err: err}
			}
			continue
		}
		if err != nil {
			return err
		}

		sc, err := schema.Synthesize(t)
		if err != nil {
			return fmt.Errorf("phase %s: %w", ph.Short(), err)
		}
		validator, err := schema.NewValidator(sc)
		if err != nil {
			return err
		}

		schemaPath, err := schema.Write(p.layout, sc)
		if err != nil {
			return err
		}
		p.logger.Info("created", slog.String("path", schemaPath))

		records := instance.Materialize(t)
		for i, r := range records {
			if err := validator.ValidateAs(ph, r); err != nil {
				var ve *core.ValidationError
				if errors.As(err, &ve) {
					ve.Source = artifact.InstanceName(ph, i, artifact.IndexWidth(len(records)))
				}
				return err
			}
		}

		removed, err := instance.Clear(p.layout, ph)
		if err != nil {
			return err
		}
		for _, path := range removed {
			p.logger.Debug("deleted", slog.String("path", path))
		}
		paths, err := instance.Write(p.layout, ph, records)
		if err != nil {
			return err
		}
		for _, path := range paths {
			p.logger.Debug("created", slog.String("path", path))
		}
		p.logger.Info("materialized", slog.String("phase", ph.Short()), slog.Int("instances", len(paths)))

		pr := report.phase(ph)
		pr.Schema = schemaPath
		pr.Instances = paths
		done++
	}

	if done == 0 {
		return &core.ConfigError{
			Path:   filepath.Join(p.layout.Root, artifact.CSVDir),
			Reason: "no phase CSV files found; run normalize first",
		}
	}
	return nil
}

func (p *Pipeline) load(ctx context.Context, report *Report) error {
	schemas, err := schema.LoadAll(p.layout)
	if err != nil {
		return err
	}
	validator, err := schema.NewValidator(schemas...)
	if err != nil {
		return err
	}

	st, err := store.Rebuild(ctx, p.target)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.Define(ctx, schemas...); err != nil {
		return err
	}

	for _, sc := range schemas {
		entries, err := instance.Read(p.layout, sc.Phase)
		if err != nil {
			return err
		}
		records := make([]*core.Record, 0, len(entries))
		for _, e := range entries {
			if err := validator.ValidateAs(sc.Phase, e.Record); err != nil {
				var ve *core.ValidationError
				if errors.As(err, &ve) {
					ve.Source = e.Path
				}
				return err
			}
			records = append(records, e.Record)
		}

		run, err := st.Populate(ctx, sc.Phase, records)
		if err != nil {
			return err
		}
		report.phase(sc.Phase).Run = run
	}
	return nil
}

func phasesOf(r *Report) []core.Phase {
	out := make([]core.Phase, 0, len(r.Phases))
	for _, pr := range r.Phases {
		out = append(out, pr.Phase)
	}
	return out
}
