// Package normalize drives a ReqIF bundle through the schema converter.
//
// Conversion is a two-state machine. DIRECT converts the bundle as
// parsed. Only when that is rejected does REPAIR_RETRY run the workaround
// engine over the same bundle and convert once more. If no workaround
// changed anything the original rejection is final; there is never more
// than one retry.
package normalize

import (
	"os"
	"path/filepath"
	"time"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/core/sdoc"
	"github.com/FocuswithJustin/reqifnorm/core/workaround"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

// Comment is written at the top of every normalized output record.
const Comment = "Normalized via StrictDoc."

// Report bounds for error messages.
const (
	DefaultErrorLimit = 500
	InputErrorLimit   = 300
)

// Prefixes for failures that happen before conversion starts.
const (
	ParseErrorPrefix   = "Parse error: "
	ArchiveErrorPrefix = "Archive error: "
)

// Parser builds a bundle from raw document bytes.
type Parser interface {
	Parse(data []byte) (*reqif.Bundle, error)
}

// Converter renders a bundle in the target schema or rejects it.
type Converter interface {
	Convert(b *reqif.Bundle) ([]*sdoc.Document, error)
}

// Outcome names the terminal state a conversion ended in.
type Outcome string

// Terminal outcomes.
const (
	OutcomeDirect       Outcome = "direct"
	OutcomeRepaired     Outcome = "repaired"
	OutcomeRepairNoOp   Outcome = "repair-noop"
	OutcomeRepairFailed Outcome = "repair-failed"
	OutcomeMalformed    Outcome = "malformed"
)

// Output is the normalized record written for a converted document.
type Output struct {
	Comment     string           `json:"_COMMENT"`
	Documents   []*sdoc.Document `json:"DOCUMENTS"`
	Workarounds []string         `json:"_WORKAROUNDS_APPLIED,omitempty"`
}

// Result is the outcome of converting one bundle.
type Result struct {
	Success     bool
	Output      *Output
	Error       string // truncated for reports; Cause keeps the full error
	Cause       error
	Workarounds []string
	Outcome     Outcome
}

// Documents returns the converted documents, or nil on failure.
func (r *Result) Documents() []*sdoc.Document {
	if r.Output == nil {
		return nil
	}
	return r.Output.Documents
}

// Orchestrator runs the direct-then-repair conversion. Nil fields fall
// back to the default parser, converter and engine.
type Orchestrator struct {
	Parser     Parser
	Converter  Converter
	Engine     *workaround.Engine
	ErrorLimit int
}

// New returns an orchestrator with the default collaborators.
func New() *Orchestrator {
	return &Orchestrator{
		Parser:     reqif.Parser{},
		Converter:  sdoc.Converter{},
		Engine:     workaround.Default(),
		ErrorLimit: DefaultErrorLimit,
	}
}

func (o *Orchestrator) parser() Parser {
	if o.Parser == nil {
		return reqif.Parser{}
	}
	return o.Parser
}

func (o *Orchestrator) converter() Converter {
	if o.Converter == nil {
		return sdoc.Converter{}
	}
	return o.Converter
}

func (o *Orchestrator) engine() *workaround.Engine {
	if o.Engine == nil {
		return workaround.Default()
	}
	return o.Engine
}

func (o *Orchestrator) limit() int {
	if o.ErrorLimit <= 0 {
		return DefaultErrorLimit
	}
	return o.ErrorLimit
}

type state int

const (
	stateDirect state = iota
	stateRepairRetry
	stateDone
)

// Convert runs the state machine over b, mutating it if repairs run.
func (o *Orchestrator) Convert(b *reqif.Bundle) *Result {
	res := &Result{}
	var rejected error

	for st := stateDirect; st != stateDone; {
		switch st {
		case stateDirect:
			docs, err := o.converter().Convert(b)
			if err == nil {
				o.succeed(res, docs, OutcomeDirect)
				st = stateDone
				continue
			}
			logging.ConversionFailed("direct", err)
			rejected = err
			st = stateRepairRetry

		case stateRepairRetry:
			st = stateDone
			res.Workarounds = o.engine().Apply(b)
			if len(res.Workarounds) == 0 {
				o.fail(res, rejected, OutcomeRepairNoOp)
				continue
			}
			docs, err := o.converter().Convert(b)
			if err != nil {
				logging.ConversionFailed("retry", err, "workarounds", len(res.Workarounds))
				o.fail(res, err, OutcomeRepairFailed)
				continue
			}
			o.succeed(res, docs, OutcomeRepaired)
		}
	}
	return res
}

func (o *Orchestrator) succeed(res *Result, docs []*sdoc.Document, outcome Outcome) {
	if docs == nil {
		docs = []*sdoc.Document{}
	}
	res.Success = true
	res.Outcome = outcome
	res.Output = &Output{Comment: Comment, Documents: docs, Workarounds: res.Workarounds}
}

func (o *Orchestrator) fail(res *Result, err error, outcome Outcome) {
	res.Success = false
	res.Outcome = outcome
	res.Cause = err
	res.Error = rerrors.Truncate(err.Error(), o.limit())
}

// InputFailure reports an input that never reached conversion.
func InputFailure(prefix string, err error) *Result {
	return &Result{
		Error:   prefix + rerrors.Truncate(err.Error(), InputErrorLimit),
		Cause:   err,
		Outcome: OutcomeMalformed,
	}
}

// ProcessBytes parses data and converts the resulting bundle.
func (o *Orchestrator) ProcessBytes(name string, data []byte) *Result {
	b, err := o.parser().Parse(data)
	if err != nil {
		logging.ConversionFailed("parse", err, "source", name)
		return InputFailure(ParseErrorPrefix, err)
	}
	return o.Convert(b)
}

// ProcessFile reads a single ReqIF document from disk and converts it.
func (o *Orchestrator) ProcessFile(path string) *Result {
	start := time.Now()
	data, err := os.ReadFile(path)
	var res *Result
	if err != nil {
		res = InputFailure(ParseErrorPrefix, err)
	} else {
		res = o.ProcessBytes(filepath.Base(path), data)
	}
	logging.FileProcessed(path, res.Success, time.Since(start),
		"outcome", string(res.Outcome), "workarounds", len(res.Workarounds))
	return res
}
