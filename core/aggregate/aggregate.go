// Package aggregate runs the normalizer or the flattener over every
// document of an archive and merges the results.
//
// A member that fails is recorded as "[member] error" and never stops the
// others. The archive as a whole fails only when no member produced
// output.
package aggregate

import (
	"fmt"
	"path/filepath"
	"strings"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/flatten"
	"github.com/FocuswithJustin/reqifnorm/core/normalize"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/core/sdoc"
	"github.com/FocuswithJustin/reqifnorm/core/workaround"
	"github.com/FocuswithJustin/reqifnorm/internal/archive"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

// Failure messages for archives with no usable member.
const (
	NoDocumentsFound      = "No documents found"
	NoRequirementsFound   = "No requirements found"
	NoSpecObjectsInMember = "no spec objects in bundle"
)

// NormalizeOutput is the merged record written for an archive.
type NormalizeOutput struct {
	Comment       string           `json:"_COMMENT"`
	Documents     []*sdoc.Document `json:"DOCUMENTS"`
	Attachments   []string         `json:"ATTACHMENTS"`
	Workarounds   []string         `json:"_WORKAROUNDS_APPLIED,omitempty"`
	PartialErrors []string         `json:"_PARTIAL_ERRORS,omitempty"`
}

// NormalizeResult is the outcome of normalizing one archive.
type NormalizeResult struct {
	Success     bool
	Output      *NormalizeOutput
	Error       string
	Workarounds []string
	Failures    []*rerrors.ArchiveMemberError
	Attachments []string
}

// FlattenOutput is the merged flattened record of an archive.
type FlattenOutput struct {
	Requirements  []*flatten.Requirement `json:"requirements"`
	Links         []*flatten.Link        `json:"links"`
	Attachments   []string               `json:"attachments"`
	PartialErrors []string               `json:"_partial_errors,omitempty"`
}

// FlattenResult is the outcome of flattening one archive.
type FlattenResult struct {
	Success     bool
	Output      *FlattenOutput
	Error       string
	Workarounds []string
	Failures    []*rerrors.ArchiveMemberError
}

// Aggregator processes archives. Nil fields use the defaults.
type Aggregator struct {
	Parser       reqif.Parser
	Orchestrator *normalize.Orchestrator
	Engine       *workaround.Engine
	Repair       bool // run Engine over each member before flattening
}

func (g *Aggregator) orchestrator() *normalize.Orchestrator {
	if g.Orchestrator == nil {
		return normalize.New()
	}
	return g.Orchestrator
}

func (g *Aggregator) engine() *workaround.Engine {
	if g.Engine == nil {
		return workaround.Default()
	}
	return g.Engine
}

// partial collects per-member failures in archive order.
type partial struct {
	failures []*rerrors.ArchiveMemberError
	messages []string
}

func (p *partial) add(member string, err error, message string) {
	logging.MemberFailed(member, err)
	p.failures = append(p.failures, &rerrors.ArchiveMemberError{Member: member, Err: err})
	p.messages = append(p.messages, fmt.Sprintf("[%s] %s", member, message))
}

func (p *partial) addMalformed(m *reqif.Member) {
	p.add(m.Name, m.Err, normalize.InputFailure(normalize.ParseErrorPrefix, m.Err).Error)
}

func (p *partial) summary(empty string) string {
	if len(p.messages) == 0 {
		return empty
	}
	return strings.Join(p.messages, "; ")
}

// Normalize converts every member of a, tags each document with its
// member name and extracts the attachments under outDir.
func (g *Aggregator) Normalize(a *reqif.Archive, outDir string) *NormalizeResult {
	res := &NormalizeResult{}
	var errs partial
	docs := []*sdoc.Document{}

	for _, m := range a.Members {
		if m.Err != nil {
			errs.addMalformed(m)
			continue
		}
		r := g.orchestrator().Convert(m.Bundle)
		for _, w := range r.Workarounds {
			res.Workarounds = append(res.Workarounds, fmt.Sprintf("[%s] %s", m.Name, w))
		}
		if !r.Success {
			errs.add(m.Name, r.Cause, r.Error)
			continue
		}
		for _, d := range r.Documents() {
			d.SourceFile = m.Name
			docs = append(docs, d)
		}
	}

	res.Attachments = extract(a, outDir, &errs)
	res.Failures = errs.failures
	if len(docs) == 0 {
		res.Error = errs.summary(NoDocumentsFound)
		return res
	}

	res.Success = true
	res.Output = &NormalizeOutput{
		Comment:       normalize.Comment,
		Documents:     docs,
		Attachments:   res.Attachments,
		Workarounds:   res.Workarounds,
		PartialErrors: errs.messages,
	}
	return res
}

// Flatten flattens every member of a, tags requirements and links with
// their member name and extracts the attachments under outDir. A
// requirement id already used by an earlier member is qualified as
// "<member>:<id>" so ids stay unique across the merged output.
func (g *Aggregator) Flatten(a *reqif.Archive, outDir string) *FlattenResult {
	res := &FlattenResult{}
	var errs partial
	out := &FlattenOutput{Requirements: []*flatten.Requirement{}, Links: []*flatten.Link{}}
	used := make(map[string]bool)

	for _, m := range a.Members {
		if m.Err != nil {
			errs.addMalformed(m)
			continue
		}
		if g.Repair {
			for _, w := range g.engine().Apply(m.Bundle) {
				res.Workarounds = append(res.Workarounds, fmt.Sprintf("[%s] %s", m.Name, w))
			}
		}
		fr := flatten.Flatten(m.Bundle)
		if len(fr.Requirements) == 0 {
			errs.add(m.Name, rerrors.NewRejected("", "", NoSpecObjectsInMember), NoSpecObjectsInMember)
			continue
		}
		if n := qualifyIDs(fr, m.Name, used); n > 0 {
			logging.Info("requirement_ids_qualified", "archive", a.Name, "member", m.Name, "count", n)
		}
		for _, r := range fr.Requirements {
			r.SourceFile = m.Name
		}
		for _, l := range fr.Links {
			l.SourceFile = m.Name
		}
		out.Requirements = append(out.Requirements, fr.Requirements...)
		out.Links = append(out.Links, fr.Links...)
	}

	out.Attachments = extract(a, outDir, &errs)
	res.Failures = errs.failures
	if len(out.Requirements) == 0 {
		res.Error = errs.summary(NoRequirementsFound)
		return res
	}

	out.PartialErrors = errs.messages
	res.Success = true
	res.Output = out
	return res
}

// qualifyIDs renames requirements of fr whose id is in used and points
// the member's links at the new ids. It adds every final id to used and
// returns the number of renamed requirements.
func qualifyIDs(fr *flatten.Result, member string, used map[string]bool) int {
	renamed := make(map[string]string)
	for _, r := range fr.Requirements {
		if used[r.ID] {
			id := member + ":" + r.ID
			for n := 2; used[id]; n++ {
				id = fmt.Sprintf("%s:%s_%d", member, r.ID, n)
			}
			renamed[r.ID] = id
			r.ID = id
		}
		used[r.ID] = true
	}
	if len(renamed) == 0 {
		return 0
	}
	for _, l := range fr.Links {
		if id, ok := renamed[l.Source]; ok {
			l.Source = id
		}
		if id, ok := renamed[l.Target]; ok {
			l.Target = id
		}
	}
	return len(renamed)
}

// extract writes the attachments and folds their failures into errs.
func extract(a *reqif.Archive, outDir string, errs *partial) []string {
	paths, failed := ExtractAttachments(a.Attachments, outDir)
	for _, err := range failed {
		logging.Warn("attachment_failed", "archive", a.Name, "error", err.Error())
		errs.messages = append(errs.messages, err.Error())
	}
	return paths
}

// NormalizeArchive loads the archive at path and normalizes it.
func (g *Aggregator) NormalizeArchive(path, outDir string) *NormalizeResult {
	a, err := g.Parser.LoadArchive(path)
	if err != nil {
		return &NormalizeResult{Error: normalize.InputFailure(normalize.ArchiveErrorPrefix, err).Error}
	}
	return g.Normalize(a, outDir)
}

// FlattenArchive loads the archive at path and flattens it.
func (g *Aggregator) FlattenArchive(path, outDir string) *FlattenResult {
	a, err := g.Parser.LoadArchive(path)
	if err != nil {
		return &FlattenResult{Error: normalize.InputFailure(normalize.ArchiveErrorPrefix, err).Error}
	}
	return g.Flatten(a, outDir)
}

// Stem is the file name of path without its archive or document
// extension; "spec.tar.gz" becomes "spec".
func Stem(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range []string{".tar.gz", ".tar.xz"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputDir is the directory archive results are written to:
// "<dir>/<stem>_output".
func OutputDir(path string) string {
	return filepath.Join(filepath.Dir(path), Stem(path)+"_output")
}

// OutputPath is where the result for input path is written. suffix is
// e.g. "_sdoc.json". Archives write into OutputDir, single documents
// beside the input.
func OutputPath(path, suffix string) string {
	if archive.IsArchive(path) {
		return filepath.Join(OutputDir(path), Stem(path)+suffix)
	}
	return filepath.Join(filepath.Dir(path), Stem(path)+suffix)
}
