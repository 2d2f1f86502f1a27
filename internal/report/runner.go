package report

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/reqifnorm/core/flatten"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/core/workaround"
	"github.com/FocuswithJustin/reqifnorm/internal/archive"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

// DefaultPatterns are the file name globs a corpus run picks up.
var DefaultPatterns = []string{"*.reqif", "*.reqifz", "*.xml"}

// Runner flattens every matching file under a directory.
type Runner struct {
	Parser   reqif.Parser
	Patterns []string // case-insensitive base-name globs; DefaultPatterns when empty
	Jobs     int      // files processed concurrently; at least 1

	// Engine, when set, runs over each bundle before flattening.
	Engine  *workaround.Engine
	Metrics *Metrics
}

func (r *Runner) patterns() []string {
	if len(r.Patterns) == 0 {
		return DefaultPatterns
	}
	return r.Patterns
}

// Matches reports whether name matches one of the runner's patterns.
func (r *Runner) Matches(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	for _, p := range r.patterns() {
		if ok, _ := filepath.Match(strings.ToLower(p), base); ok {
			return true
		}
	}
	return false
}

type candidate struct {
	path string
	size int64
}

// Discover lists the matching files under root, smallest first.
func (r *Runner) Discover(root string) ([]string, error) {
	var found []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !r.Matches(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		found = append(found, candidate{path: path, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].size != found[j].size {
			return found[i].size < found[j].size
		}
		return found[i].path < found[j].path
	})
	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, nil
}

// Run processes every file under root. Results keep discovery order
// whatever the concurrency. Only a scan failure or cancellation of ctx
// fails the run; individual file failures are recorded in the report.
func (r *Runner) Run(ctx context.Context, root string) (*Report, error) {
	rep := &Report{
		RunID:     uuid.New().String(),
		Root:      root,
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.WithRunID(ctx, rep.RunID)

	files, err := r.Discover(root)
	if err != nil {
		return nil, err
	}
	logging.InfoContext(ctx, "corpus_started", "root", root, "files", len(files))

	results := make([]*FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Jobs, 1))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.ProcessFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.WarnContext(ctx, "corpus_aborted", "error", err.Error())
		return nil, err
	}

	rep.Results = results
	rep.Duration = time.Since(rep.StartedAt)
	rep.Tally()
	logging.InfoContext(ctx, "corpus_finished",
		"files", rep.Summary.TotalFiles,
		"successful", rep.Summary.Successful,
		"failed", rep.Summary.Failed,
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, nil
}

// ProcessFile parses and flattens one corpus file.
func (r *Runner) ProcessFile(path string) *FileResult {
	start := time.Now()
	res := &FileResult{
		File:   filepath.Base(path),
		Source: filepath.Base(filepath.Dir(path)),
		Path:   path,
	}

	r.process(res)

	elapsed := time.Since(start)
	res.ParseTimeMS = round2(float64(elapsed.Microseconds()) / 1000)
	r.Metrics.Observe(res, elapsed)
	logging.FileProcessed(path, res.Success, elapsed,
		"size", humanize.Bytes(uint64(res.Size)),
		"requirements", res.RequirementsCount,
	)
	return res
}

func (r *Runner) process(res *FileResult) {
	data, err := os.ReadFile(res.Path)
	if err != nil {
		res.fail(LevelParser, ParserCategory(err.Error()))
		return
	}
	res.Size = int64(len(data))
	res.SizeKB = round2(float64(len(data)) / 1024)
	sum := blake3.Sum256(data)
	res.Fingerprint = hex.EncodeToString(sum[:])

	bundles, err := r.load(res, data)
	if err != nil {
		res.fail(LevelParser, ParserCategory(err.Error()))
		return
	}

	var reqs []*flatten.Requirement
	hasObjects := false
	for _, b := range bundles {
		if len(b.SpecObjects) > 0 {
			hasObjects = true
		}
		if r.Engine != nil {
			r.Engine.Apply(b)
		}
		fr := flatten.Flatten(b)
		reqs = append(reqs, fr.Requirements...)
		res.LinksCount += len(fr.Links)
	}

	if len(reqs) == 0 {
		res.LinksCount = 0
		res.fail(LevelExtraction, ExtractionCategory(hasObjects))
		return
	}
	res.Success = true
	res.RequirementsCount = len(reqs)
	res.SampleRequirement = reqs[0]
}

// load parses a single document or every member of an archive. An
// archive fails as a whole only when none of its members parsed.
func (r *Runner) load(res *FileResult, data []byte) ([]*reqif.Bundle, error) {
	if !archive.IsArchive(res.Path) {
		b, err := r.Parser.Parse(data)
		if err != nil {
			return nil, err
		}
		return []*reqif.Bundle{b}, nil
	}

	a, err := r.Parser.LoadArchive(res.Path)
	if err != nil {
		return nil, err
	}
	for _, att := range a.Attachments {
		if !att.IsDir() && len(att.Data) > 0 {
			res.AttachmentsCount++
		}
	}

	var bundles []*reqif.Bundle
	var firstErr error
	for _, m := range a.Members {
		if m.Err != nil {
			logging.MemberFailed(m.Name, m.Err)
			if firstErr == nil {
				firstErr = m.Err
			}
			continue
		}
		bundles = append(bundles, m.Bundle)
	}
	if len(bundles) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return bundles, nil
}

func (res *FileResult) fail(level Level, category string) {
	res.Success = false
	res.ErrorLevel = level
	res.Error = category
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
