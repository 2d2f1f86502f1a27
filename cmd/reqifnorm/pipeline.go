package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/FocuswithJustin/reqifnorm/core/aggregate"
	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/flatten"
	"github.com/FocuswithJustin/reqifnorm/core/normalize"
	"github.com/FocuswithJustin/reqifnorm/core/sdoc"
	"github.com/FocuswithJustin/reqifnorm/internal/archive"
	"github.com/FocuswithJustin/reqifnorm/internal/config"
	"github.com/FocuswithJustin/reqifnorm/internal/validation"
)

// Output file suffixes.
const (
	sdocSuffix = "_sdoc.json"
	flatSuffix = "_flat.json"
	packSuffix = ".tar.xz"
)

// consoleErrorLimit bounds failure reasons printed per file.
const consoleErrorLimit = 80

// PipelineFlags override the config file for one invocation.
type PipelineFlags struct {
	NoPreprocess bool     `name:"no-preprocess" help:"Parse without the text repairs"`
	Disable      []string `help:"Workaround passes to switch off (coerce-types, fill-type-names, rename-duplicates, prune-empty, prune-references)" placeholder:"PASS"`
	ErrorLimit   int      `name:"error-limit" help:"Maximum length of conversion error messages"`
}

func (f PipelineFlags) apply(base *config.Config) (*config.Config, error) {
	cfg := *base
	if f.NoPreprocess {
		cfg.Preprocess = false
	}
	if len(f.Disable) > 0 {
		cfg.DisabledWorkarounds = append(slices.Clone(base.DisabledWorkarounds), f.Disable...)
	}
	if f.ErrorLimit > 0 {
		cfg.ErrorLimit = f.ErrorLimit
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// pipeline holds the collaborators shared by every file of a command.
type pipeline struct {
	cfg  *config.Config
	orch *normalize.Orchestrator
	agg  *aggregate.Aggregator
	pack bool
}

func newPipeline(base *config.Config, flags PipelineFlags) (*pipeline, error) {
	cfg, err := flags.apply(base)
	if err != nil {
		return nil, err
	}
	orch, err := cfg.Orchestrator()
	if err != nil {
		return nil, err
	}
	return &pipeline{
		cfg:  cfg,
		orch: orch,
		agg: &aggregate.Aggregator{
			Parser:       cfg.Parser(),
			Orchestrator: orch,
			Engine:       orch.Engine,
			Repair:       cfg.Flatten.Repair,
		},
	}, nil
}

// isDocument reports whether path is a single ReqIF document.
func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".reqif", ".xml":
		return true
	}
	return false
}

// normalize converts one file and reports the outcome. It returns false
// when the file failed.
func (p *pipeline) normalize(e *env, path string) bool {
	name := filepath.Base(path)
	if !checkInput(e, path) {
		return false
	}

	var out any
	var docs []*sdoc.Document
	var workarounds, partial int
	switch {
	case archive.IsArchive(path):
		res := p.agg.NormalizeArchive(path, aggregate.OutputDir(path))
		if !res.Success {
			return e.failed(name, res.Error)
		}
		out, docs = res.Output, res.Output.Documents
		workarounds, partial = len(res.Workarounds), len(res.Output.PartialErrors)
	case isDocument(path):
		res := p.orch.ProcessFile(path)
		if !res.Success {
			return e.failed(name, res.Error)
		}
		out, docs = res.Output, res.Output.Documents
		workarounds = len(res.Workarounds)
	default:
		fmt.Fprintf(e.out, "Unsupported file type: %s\n", filepath.Ext(path))
		return false
	}

	if err := writeJSON(aggregate.OutputPath(path, sdocSuffix), out); err != nil {
		return e.failed(name, err.Error())
	}
	fmt.Fprintf(e.out, "%s %s: %d docs, %d nodes\n", e.st.okMark(), name, len(docs), sdoc.CountNodes(docs))
	if workarounds > 0 {
		fmt.Fprintf(e.out, "  Workarounds: %d\n", workarounds)
	}
	if partial > 0 {
		fmt.Fprintf(e.out, "  %s\n", e.st.muted.Render(fmt.Sprintf("Partial errors: %d", partial)))
	}
	return p.packOutput(e, path)
}

// flatten flattens one file and reports the outcome.
func (p *pipeline) flatten(e *env, path string) bool {
	name := filepath.Base(path)
	if !checkInput(e, path) {
		return false
	}

	var out any
	var reqs, links, atts int
	switch {
	case archive.IsArchive(path):
		res := p.agg.FlattenArchive(path, aggregate.OutputDir(path))
		if !res.Success {
			return e.failed(name, res.Error)
		}
		out = res.Output
		reqs, links, atts = len(res.Output.Requirements), len(res.Output.Links), len(res.Output.Attachments)
	case isDocument(path):
		fr, err := p.flattenDocument(path)
		if err != nil {
			return e.failed(name, err.Error())
		}
		out = fr
		reqs, links = len(fr.Requirements), len(fr.Links)
	default:
		fmt.Fprintf(e.out, "Unsupported file type: %s\n", filepath.Ext(path))
		return false
	}

	if err := writeJSON(aggregate.OutputPath(path, flatSuffix), out); err != nil {
		return e.failed(name, err.Error())
	}
	fmt.Fprintf(e.out, "%s %s: %d requirements, %d links, %d attachments\n", e.st.okMark(), name, reqs, links, atts)
	return p.packOutput(e, path)
}

func (p *pipeline) flattenDocument(path string) (*flatten.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := p.cfg.Parser().Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s%s", normalize.ParseErrorPrefix, rerrors.Truncate(err.Error(), normalize.InputErrorLimit))
	}
	if p.cfg.Flatten.Repair {
		p.orch.Engine.Apply(b)
	}
	fr := flatten.Flatten(b)
	if len(fr.Requirements) == 0 {
		return nil, errors.New(aggregate.NoRequirementsFound)
	}
	return fr, nil
}

// packOutput archives an archive's output directory when --pack is set.
func (p *pipeline) packOutput(e *env, path string) bool {
	if !p.pack || !archive.IsArchive(path) {
		return true
	}
	dir := aggregate.OutputDir(path)
	dst := dir + packSuffix
	if err := archive.Pack(dir, dst); err != nil {
		return e.failed(filepath.Base(path), "pack: "+err.Error())
	}
	fmt.Fprintf(e.out, "  Packed: %s\n", dst)
	return true
}

// checkInput reports whether path is a regular file whose content
// matches its extension.
func checkInput(e *env, path string) bool {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		fmt.Fprintf(e.out, "File not found: %s\n", path)
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return e.failed(filepath.Base(path), err.Error())
	}
	defer f.Close()

	if _, err := validation.ValidateFileType(f, path); err != nil {
		return e.failed(filepath.Base(path), err.Error())
	}
	return true
}

// failed prints a failure line and returns false.
func (e *env) failed(name, reason string) bool {
	fmt.Fprintf(e.out, "%s %s: %s\n", e.st.failMark(), name, rerrors.Truncate(reason, consoleErrorLimit))
	return false
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
