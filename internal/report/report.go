// Package report runs the flattener over a corpus of ReqIF files and
// summarizes what parsed, what was extracted and where failures happened.
//
// Failures are split by level. Parser failures mean no bundle could be
// built from the file; extraction failures mean the bundle parsed but
// yielded no requirements.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/flatten"
)

// ReportFile is the file name the corpus report is written to.
const ReportFile = "parse_report.json"

// Level is the pipeline stage a file failed at.
type Level string

// Failure levels.
const (
	LevelParser     Level = "parser"
	LevelExtraction Level = "extraction"
)

// Error categories.
const (
	CategoryCommentsBeforeDeclaration = "XML: comments before declaration"
	CategoryInvalidRoot               = "XML: invalid root tag (RIF vs REQ-IF)"
	CategoryAssertion                 = "parser assertion error"
	CategoryNoHierarchy               = "extraction: spec objects exist but no specifications/hierarchy"
	CategoryNoSpecObjects             = "extraction: no spec objects in file"
)

// detailLimit bounds the raw error text kept in uncategorized failures.
const detailLimit = 50

// FileResult is the outcome for one corpus file.
type FileResult struct {
	File              string               `json:"file"`
	Source            string               `json:"source"`
	SizeKB            float64              `json:"size_kb"`
	Success           bool                 `json:"success"`
	RequirementsCount int                  `json:"requirements_count"`
	LinksCount        int                  `json:"links_count"`
	AttachmentsCount  int                  `json:"attachments_count"`
	ParseTimeMS       float64              `json:"parse_time_ms"`
	Error             string               `json:"error,omitempty"`
	ErrorLevel        Level                `json:"error_level,omitempty"`
	SampleRequirement *flatten.Requirement `json:"sample_requirement,omitempty"`
	Fingerprint       string               `json:"blake3,omitempty"`

	Path string `json:"-"`
	Size int64  `json:"-"`
}

// Summary totals a run.
type Summary struct {
	TotalFiles        int `json:"total_files"`
	Successful        int `json:"successful"`
	Failed            int `json:"failed"`
	TotalRequirements int `json:"total_requirements"`
	TotalLinks        int `json:"total_links"`
}

// SourceStats totals the files of one source directory.
type SourceStats struct {
	Success      int `json:"success"`
	Fail         int `json:"fail"`
	Requirements int `json:"reqs"`
}

// Report is the full record of a corpus run.
type Report struct {
	RunID     string                  `json:"run_id"`
	Root      string                  `json:"root"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"-"`
	Summary   Summary                 `json:"summary"`
	BySource  map[string]*SourceStats `json:"by_source"`
	Results   []*FileResult           `json:"results"`
}

// Tally recomputes Summary and BySource from Results.
func (r *Report) Tally() {
	r.Summary = Summary{TotalFiles: len(r.Results)}
	r.BySource = make(map[string]*SourceStats)
	for _, res := range r.Results {
		stats := r.BySource[res.Source]
		if stats == nil {
			stats = &SourceStats{}
			r.BySource[res.Source] = stats
		}
		if res.Success {
			r.Summary.Successful++
			r.Summary.TotalRequirements += res.RequirementsCount
			r.Summary.TotalLinks += res.LinksCount
			stats.Success++
			stats.Requirements += res.RequirementsCount
		} else {
			r.Summary.Failed++
			stats.Fail++
		}
	}
}

// Sources returns the source names in sorted order.
func (r *Report) Sources() []string {
	names := make([]string, 0, len(r.BySource))
	for name := range r.BySource {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failures returns the failed results at the given level, in run order.
func (r *Report) Failures(level Level) []*FileResult {
	var out []*FileResult
	for _, res := range r.Results {
		if !res.Success && res.ErrorLevel == level {
			out = append(out, res)
		}
	}
	return out
}

// WriteJSON writes the report, indented, to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return rerrors.NewIO("write", path, err)
	}
	return nil
}

// ParserCategory maps a parse failure message to its report category.
func ParserCategory(msg string) string {
	switch {
	case strings.Contains(msg, "XML declaration"):
		return CategoryCommentsBeforeDeclaration
	case strings.Contains(msg, "Expected root tag"):
		return CategoryInvalidRoot
	case strings.Contains(strings.ToLower(msg), "assert"):
		return CategoryAssertion
	}
	return "parser: " + rerrors.Truncate(msg, detailLimit)
}

// ExtractionCategory names an empty extraction.
func ExtractionCategory(hasSpecObjects bool) string {
	if hasSpecObjects {
		return CategoryNoHierarchy
	}
	return CategoryNoSpecObjects
}
