package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/reqifnorm/core/sdoc"
	"github.com/FocuswithJustin/reqifnorm/core/sqlite"
	"github.com/FocuswithJustin/reqifnorm/internal/report"
	"github.com/FocuswithJustin/reqifnorm/internal/watch"
)

// NormalizeCmd converts files to StrictDoc JSON.
type NormalizeCmd struct {
	Files    []string      `arg:"" help:"ReqIF documents (.reqif, .xml) or archives (.reqifz, .tar.gz, .tar.xz)" type:"path"`
	Pack     bool          `help:"Pack each archive's output directory into <stem>_output.tar.xz"`
	Pipeline PipelineFlags `embed:""`
}

func (c *NormalizeCmd) Run(e *env) error {
	p, err := newPipeline(e.cfg, c.Pipeline)
	if err != nil {
		return err
	}
	p.pack = c.Pack
	return countFailures(c.Files, func(path string) bool { return p.normalize(e, path) })
}

// FlattenCmd converts files to the flat requirements format.
type FlattenCmd struct {
	Files    []string      `arg:"" help:"ReqIF documents or archives" type:"path"`
	Repair   bool          `help:"Run the workaround passes before flattening"`
	Pack     bool          `help:"Pack each archive's output directory into <stem>_output.tar.xz"`
	Pipeline PipelineFlags `embed:""`
}

func (c *FlattenCmd) Run(e *env) error {
	p, err := newPipeline(e.cfg, c.Pipeline)
	if err != nil {
		return err
	}
	p.pack = c.Pack
	if c.Repair {
		p.cfg.Flatten.Repair = true
		p.agg.Repair = true
	}
	return countFailures(c.Files, func(path string) bool { return p.flatten(e, path) })
}

func countFailures(files []string, process func(string) bool) error {
	failed := 0
	for _, f := range files {
		if !process(f) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// CorpusCmd surveys a directory tree of ReqIF files.
type CorpusCmd struct {
	Dir     string `arg:"" help:"Corpus root directory" type:"existingdir"`
	Jobs    int    `short:"j" help:"Files processed concurrently (default from config)"`
	DB      string `name:"db" help:"SQLite database to record the run in" type:"path"`
	Metrics string `help:"Write Prometheus metrics to this textfile" type:"path"`
	Report  string `help:"Report path (default <dir>/parse_report.json)" type:"path"`
	Repair  bool   `help:"Run the workaround passes before flattening"`
}

func (c *CorpusCmd) Run(e *env) error {
	cfg := e.cfg
	r := &report.Runner{
		Parser:   cfg.Parser(),
		Patterns: cfg.Corpus.Patterns,
		Jobs:     cfg.Corpus.Jobs,
	}
	if c.Jobs > 0 {
		r.Jobs = c.Jobs
	}
	if c.Repair || cfg.Flatten.Repair {
		engine, err := cfg.Engine()
		if err != nil {
			return err
		}
		r.Engine = engine
	}
	metricsPath := firstNonEmpty(c.Metrics, cfg.Corpus.Metrics)
	if metricsPath != "" {
		r.Metrics = report.NewMetrics()
	}

	rep, err := r.Run(e.ctx, c.Dir)
	if err != nil {
		return err
	}
	printCorpus(e, rep)

	reportPath := firstNonEmpty(c.Report, filepath.Join(c.Dir, report.ReportFile))
	if err := rep.WriteJSON(reportPath); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "\nDetailed report saved to: %s\n", reportPath)

	if metricsPath != "" {
		if err := r.Metrics.WriteTextfile(metricsPath); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		fmt.Fprintf(e.out, "Metrics written to: %s\n", metricsPath)
	}

	if dbPath := firstNonEmpty(c.DB, cfg.Corpus.Database); dbPath != "" {
		store, err := report.OpenStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		seen, err := countSeen(e, store, rep)
		if err != nil {
			return err
		}
		if err := store.Save(e.ctx, rep); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		fmt.Fprintf(e.out, "Run %s recorded in %s\n", rep.RunID, dbPath)
		if seen > 0 {
			fmt.Fprintf(e.out, "Unchanged since an earlier run: %d files\n", seen)
		}
	}
	return nil
}

// countSeen counts results whose content an earlier run already processed.
func countSeen(e *env, store *report.Store, rep *report.Report) (int, error) {
	seen := 0
	for _, r := range rep.Results {
		if r.Fingerprint == "" {
			continue
		}
		id, err := store.SeenBefore(e.ctx, r.Fingerprint)
		if err != nil {
			return 0, err
		}
		if id != "" {
			seen++
		}
	}
	return seen, nil
}

func printCorpus(e *env, rep *report.Report) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintf(e.out, "Found %d ReqIF files to test\n\n%s\n", len(rep.Results), rule)

	var total int64
	for _, r := range rep.Results {
		total += r.Size
		rel, err := filepath.Rel(rep.Root, r.Path)
		if err != nil {
			rel = r.Path
		}
		fmt.Fprintf(e.out, "\nTesting: %s\n", filepath.ToSlash(rel))
		if r.Success {
			fmt.Fprintf(e.out, "  %s OK: %d requirements, %d links (%gms)\n",
				e.st.okMark(), r.RequirementsCount, r.LinksCount, r.ParseTimeMS)
		} else {
			fmt.Fprintf(e.out, "  %s FAILED: %s\n", e.st.failMark(), r.Error)
		}
	}

	s := rep.Summary
	fmt.Fprintf(e.out, "\n%s\n\n%s\n%s\n", rule, e.st.heading.Render("SUMMARY"), rule)
	fmt.Fprintf(e.out, "Total files tested: %d (%s)\n", s.TotalFiles, humanize.Bytes(uint64(total)))
	fmt.Fprintf(e.out, "Successful: %d\n", s.Successful)
	fmt.Fprintf(e.out, "Failed: %d\n", s.Failed)
	fmt.Fprintf(e.out, "Total requirements extracted: %s\n", humanize.Comma(int64(s.TotalRequirements)))
	fmt.Fprintf(e.out, "Total links extracted: %s\n", humanize.Comma(int64(s.TotalLinks)))

	section := strings.Repeat("-", 40)
	fmt.Fprintf(e.out, "\n%s\n%s\n", section, e.st.heading.Render("BY SOURCE:"))
	for _, name := range rep.Sources() {
		st := rep.BySource[name]
		fmt.Fprintf(e.out, "  %s: %d/%d files, %d requirements\n", name, st.Success, st.Success+st.Fail, st.Requirements)
	}

	for _, group := range []struct {
		level report.Level
		title string
	}{
		{report.LevelParser, "PARSER FAILURES"},
		{report.LevelExtraction, "EXTRACTION FAILURES"},
	} {
		fails := rep.Failures(group.level)
		if len(fails) == 0 {
			continue
		}
		fmt.Fprintf(e.out, "\n%s\n%s\n", section, e.st.heading.Render(fmt.Sprintf("%s (%d):", group.title, len(fails))))
		for _, r := range fails {
			fmt.Fprintf(e.out, "  - %s/%s: %s\n", r.Source, r.File, r.Error)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// HistoryCmd browses the runs recorded by corpus --db.
type HistoryCmd struct {
	DB    string `arg:"" help:"SQLite database written by corpus --db" type:"existingfile"`
	RunID string `name:"run" help:"Show the file results of this run"`
}

func (c *HistoryCmd) Run(e *env) error {
	store, err := report.OpenStoreReadOnly(c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	if c.RunID != "" {
		results, err := store.Results(e.ctx, c.RunID)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no run %s in %s", c.RunID, c.DB)
		}
		fmt.Fprintf(e.out, "%s\n", e.st.heading.Render(fmt.Sprintf("RUN %s (%d files):", c.RunID, len(results))))
		for _, r := range results {
			if r.Success {
				fmt.Fprintf(e.out, "  %s %s/%s: %d requirements, %d links\n", e.st.okMark(), r.Source, r.File, r.RequirementsCount, r.LinksCount)
			} else {
				fmt.Fprintf(e.out, "  %s %s/%s: %s\n", e.st.failMark(), r.Source, r.File, r.Error)
			}
		}
		return nil
	}

	runs, err := store.Runs(e.ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s\n", e.st.heading.Render(fmt.Sprintf("RUNS (%d):", len(runs))))
	for _, ri := range runs {
		s := ri.Summary
		fmt.Fprintf(e.out, "  %s  %s  %d/%d files, %s requirements, %s links  %s\n",
			ri.ID, ri.Root, s.Successful, s.TotalFiles,
			humanize.Comma(int64(s.TotalRequirements)), humanize.Comma(int64(s.TotalLinks)),
			e.st.muted.Render(humanize.Time(ri.StartedAt)))
	}
	return nil
}

// WatchCmd normalizes documents dropped into a directory.
type WatchCmd struct {
	Dir      string        `arg:"" help:"Directory to watch" type:"existingdir"`
	Debounce time.Duration `help:"Quiet period before a changed file is processed" default:"500ms"`
	Pack     bool          `help:"Pack each archive's output directory into <stem>_output.tar.xz"`
	Pipeline PipelineFlags `embed:""`
}

func (c *WatchCmd) Run(e *env) error {
	p, err := newPipeline(e.cfg, c.Pipeline)
	if err != nil {
		return err
	}
	p.pack = c.Pack

	w := watch.New(c.Dir, isWatched, func(path string) { p.normalize(e, path) }).WithDebounce(c.Debounce)
	fmt.Fprintf(e.out, "Watching %s (Ctrl+C to stop)\n", c.Dir)
	return w.Watch(e.ctx)
}

// isWatched selects the files the watch command reacts to.
func isWatched(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".reqif", ".reqifz":
		return true
	}
	return false
}

// InitCmd writes the loaded config, flag overrides included, so it can
// be edited and passed back with --config.
type InitCmd struct {
	Path  string `arg:"" optional:"" default:"reqifnorm.yaml" help:"Output file (.toml for TOML, YAML otherwise)" type:"path"`
	Force bool   `short:"f" help:"Overwrite an existing file"`
}

func (c *InitCmd) Run(e *env) error {
	if _, err := os.Stat(c.Path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", c.Path)
	}
	if err := e.cfg.Save(c.Path); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s Wrote %s\n", e.st.ok.Render("✓"), c.Path)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(e *env) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(e.out, "reqifnorm version %s\n", version)
	fmt.Fprintf(e.out, "field mapping: v%s\n", sdoc.FieldMappingVersion)
	fmt.Fprintf(e.out, "sqlite driver: %s (%s)\n", info.DriverType, info.Package)
	return nil
}
