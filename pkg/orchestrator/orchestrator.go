// Package orchestrator drives the three mode state machines (Brainstorm,
// Analyze, Generate): it resolves the session, plans with the LLM oracle,
// dispatches sanitized tool calls through the client pools, and emits an
// ordered event stream.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/satishdosapati/solutionbuilder-core/pkg/config"
	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/llm"
	"github.com/satishdosapati/solutionbuilder-core/pkg/masking"
	"github.com/satishdosapati/solutionbuilder-core/pkg/policy"
	"github.com/satishdosapati/solutionbuilder-core/pkg/pool"
	"github.com/satishdosapati/solutionbuilder-core/pkg/session"
)

// Modes.
const (
	ModeBrainstorm = "brainstorm"
	ModeAnalyze    = "analyze"
	ModeGenerate   = "generate"
)

// Request is the §-envelope a front-end hands the orchestrator: session,
// mode, free-form input, and the optional mode-specific extras.
type Request struct {
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode"`
	Input     string `json:"input"`

	// ExistingTemplate seeds a generate-mode revision.
	ExistingTemplate string `json:"existing_template,omitempty"`

	// Constraints carries analyze-mode hints (e.g. region).
	Constraints map[string]string `json:"constraints,omitempty"`
}

// Options tune the orchestrator. Zero values take the defaults below.
type Options struct {
	BrainstormDeadline time.Duration
	AnalyzeDeadline    time.Duration
	GenerateDeadline   time.Duration

	// MaxParallelToolCalls caps fan-out within one planning turn.
	MaxParallelToolCalls int

	// MaxPlanIterations bounds the plan → dispatch → resume loop.
	MaxPlanIterations int

	// Server roles: which config keys serve documentation search, diagram
	// generation, template generation, and pricing.
	DocsKey     string
	DiagramKey  string
	TemplateKey string
	PricingKey  string

	// Tool names the orchestrator invokes directly (outside a planning
	// loop) on the diagram, pricing, and template servers.
	DiagramTool  string
	PricingTool  string
	ValidateTool string
}

func (o Options) withDefaults() Options {
	if o.BrainstormDeadline == 0 {
		o.BrainstormDeadline = config.DefaultBrainstormDeadline
	}
	if o.AnalyzeDeadline == 0 {
		o.AnalyzeDeadline = config.DefaultAnalyzeDeadline
	}
	if o.GenerateDeadline == 0 {
		o.GenerateDeadline = config.DefaultGenerateDeadline
	}
	if o.MaxParallelToolCalls == 0 {
		o.MaxParallelToolCalls = 4
	}
	if o.MaxPlanIterations == 0 {
		o.MaxPlanIterations = 8
	}
	if o.DocsKey == "" {
		o.DocsKey = "docs"
	}
	if o.DiagramKey == "" {
		o.DiagramKey = "diagram"
	}
	if o.TemplateKey == "" {
		o.TemplateKey = "cfn"
	}
	if o.PricingKey == "" {
		o.PricingKey = "pricing"
	}
	if o.DiagramTool == "" {
		o.DiagramTool = "generate_diagram"
	}
	if o.PricingTool == "" {
		o.PricingTool = "estimate_costs"
	}
	if o.ValidateTool == "" {
		o.ValidateTool = "validate_template"
	}
	return o
}

// Orchestrator borrows pools and sessions for the lifetime of one request
// and never retains them.
type Orchestrator struct {
	pools     *pool.Manager
	sessions  *session.Store
	registry  *config.ServerRegistry
	oracle    llm.Oracle
	sanitizer *policy.Sanitizer
	masker    *masking.Masker
	opts      Options
	logger    *slog.Logger
}

// New wires an orchestrator. masker may be nil (redaction disabled).
func New(
	pools *pool.Manager,
	sessions *session.Store,
	registry *config.ServerRegistry,
	oracle llm.Oracle,
	sanitizer *policy.Sanitizer,
	masker *masking.Masker,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		pools:     pools,
		sessions:  sessions,
		registry:  registry,
		oracle:    oracle,
		sanitizer: sanitizer,
		masker:    masker,
		opts:      opts.withDefaults(),
		logger:    slog.Default(),
	}
}

// NewSanitizer builds the per-mode allow-lists for the configured server
// roles: brainstorm may only touch the documentation server; analyze adds
// diagram and pricing; generate adds the template server.
func NewSanitizer(opts Options, extraDeny []string) *policy.Sanitizer {
	opts = opts.withDefaults()
	deny := policy.DefaultDenySubstrings
	if len(extraDeny) > 0 {
		deny = append(append([]string{}, deny...), extraDeny...)
	}
	return policy.NewSanitizer(deny, map[string][]string{
		ModeBrainstorm: {opts.DocsKey + "."},
		ModeAnalyze:    {opts.DocsKey + ".", opts.DiagramKey + ".", opts.PricingKey + "."},
		ModeGenerate:   {opts.TemplateKey + ".", opts.DiagramKey + ".", opts.PricingKey + ".", opts.DocsKey + "."},
	})
}

// Run executes one request, writing events to enc. It always terminates the
// stream with exactly one complete or failed event (unless the client is
// already gone) and returns the failure, if any, for logging.
func (o *Orchestrator) Run(ctx context.Context, req Request, enc *events.StreamEncoder) error {
	deadline := o.deadlineFor(req.Mode)
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	err := o.dispatchMode(runCtx, req, enc)
	if err == nil {
		return nil
	}

	kind, msg := o.classify(ctx, runCtx, err)
	o.logger.Warn("Request failed",
		"mode", req.Mode, "session", req.SessionID, "kind", kind, "error", err)

	if !enc.Terminated() {
		if emitErr := enc.Emit(events.Failed(kind, msg)); emitErr != nil {
			o.logger.Debug("Could not deliver terminal failure", "error", emitErr)
		}
	}
	return err
}

func (o *Orchestrator) dispatchMode(ctx context.Context, req Request, enc *events.StreamEncoder) error {
	switch req.Mode {
	case ModeBrainstorm:
		return o.runBrainstorm(ctx, req, enc)
	case ModeAnalyze:
		return o.runAnalyze(ctx, req, enc)
	case ModeGenerate:
		return o.runGenerate(ctx, req, enc)
	default:
		return fmt.Errorf("%w: unknown mode %q", errInternal, req.Mode)
	}
}

func (o *Orchestrator) deadlineFor(mode string) time.Duration {
	switch mode {
	case ModeAnalyze:
		return o.opts.AnalyzeDeadline
	case ModeGenerate:
		return o.opts.GenerateDeadline
	default:
		return o.opts.BrainstormDeadline
	}
}

// Internal error markers mapped to terminal failed kinds.
var (
	errInternal        = errors.New("internal error")
	errPolicyViolation = errors.New("policy violation")
	errToolError       = errors.New("tool error")
	errEmptyInput      = errors.New("empty input")
)

// classify maps an error to the client-facing failure kind. parent is the
// caller's context (client disconnect); runCtx carries the mode deadline.
func (o *Orchestrator) classify(parent, runCtx context.Context, err error) (kind, msg string) {
	switch {
	case parent.Err() != nil:
		return events.FailCancelled, "request cancelled"
	case errors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil:
		return events.FailTimeout, "request deadline exceeded"
	case errors.Is(err, pool.ErrPoolExhausted) || errors.Is(err, pool.ErrPoolShuttingDown):
		return events.FailPoolExhausted, "no tool-server client available"
	case errors.Is(err, errPolicyViolation):
		return events.FailPolicyViolation, err.Error()
	case errors.Is(err, errToolError):
		return events.FailToolError, err.Error()
	default:
		return events.FailInternal, "internal error"
	}
}
