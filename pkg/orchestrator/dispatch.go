package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/llm"
	"github.com/satishdosapati/solutionbuilder-core/pkg/mcp"
	"github.com/satishdosapati/solutionbuilder-core/pkg/policy"
	"github.com/satishdosapati/solutionbuilder-core/pkg/pool"
	"github.com/satishdosapati/solutionbuilder-core/pkg/session"
)

// maxSuccessiveToolFailures is the number of consecutive failed calls to the
// same tool at which the request escalates to tool_error. The count runs
// across the planning turns of one request; a successful call resets it.
const maxSuccessiveToolFailures = 3

// runState is the working memory of one request.
type runState struct {
	mode string
	req  Request
	sess *session.Session
	enc  *events.StreamEncoder

	msgs    []llm.Message
	tools   []llm.ToolDef
	records []session.ToolCallRecord

	// resultTexts accumulates tool output for citation extraction.
	resultTexts []string

	// lastResultByServer keeps the most recent successful result per server
	// key; generate mode reads the template text from here.
	lastResultByServer map[string]string

	successiveBlocks int
	toolFailures     map[string]int
	nextCallID       int

	// diagramEmitted records that an artifact event carried a diagram.
	diagramEmitted bool
}

func newRunState(mode string, req Request, sess *session.Session, enc *events.StreamEncoder) *runState {
	return &runState{
		mode:               mode,
		req:                req,
		sess:               sess,
		enc:                enc,
		toolFailures:       make(map[string]int),
		lastResultByServer: make(map[string]string),
	}
}

// planLoop drives plan → dispatch → resume until the oracle produces a final
// text turn. Streaming chunks are forwarded as partial_text events.
func (o *Orchestrator) planLoop(ctx context.Context, st *runState, systemPrompt string) (*llm.Turn, error) {
	for iter := 0; iter < o.opts.MaxPlanIterations; iter++ {
		turn, err := o.oracle.StreamPlan(ctx, llm.PlanRequest{
			SystemPrompt: systemPrompt,
			Messages:     st.msgs,
			Tools:        st.tools,
		}, func(delta string) {
			_ = st.enc.Emit(events.PartialText(delta))
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: oracle: %v", errInternal, err)
		}

		if turn.IsFinal() {
			return turn, nil
		}

		st.msgs = append(st.msgs, llm.Message{
			Role:         llm.RoleAssistant,
			Content:      turn.Text,
			ToolRequests: turn.ToolRequests,
		})

		results, err := o.dispatchToolCalls(ctx, st, turn.ToolRequests)
		if err != nil {
			return nil, err
		}
		st.msgs = append(st.msgs, results...)
	}
	return nil, fmt.Errorf("%w: planning did not converge within %d iterations",
		errToolError, o.opts.MaxPlanIterations)
}

// toolOutcome is one dispatched call's result, kept in request order.
type toolOutcome struct {
	request llm.ToolRequest
	callID  int
	status  string // ok | error | blocked
	text    string // result content or error message fed back to the model
}

// dispatchToolCalls sanitizes and executes the tool requests of one planning
// turn. Independent calls run in parallel (bounded fan-out); emitted
// tool_invoked/tool_result events follow the stable call numbering so
// clients can correlate them.
func (o *Orchestrator) dispatchToolCalls(ctx context.Context, st *runState, requests []llm.ToolRequest) ([]llm.Message, error) {
	outcomes := make([]*toolOutcome, len(requests))

	// Sanitize first: blocked calls never reach a pool.
	for i, req := range requests {
		callID := st.nextCallID
		st.nextCallID++
		outcomes[i] = &toolOutcome{request: req, callID: callID}

		if err := o.sanitizer.Check(st.mode, req.Name); err != nil {
			var blocked *policy.BlockedError
			if errors.As(err, &blocked) {
				outcomes[i].status = events.ToolStatusBlocked
				outcomes[i].text = fmt.Sprintf(
					"Tool call blocked by policy: %s. Choose a different tool.", blocked.Reason)
				st.successiveBlocks++
				if st.successiveBlocks >= policy.MaxSuccessiveBlocks {
					// Report the block so the stream shows what happened,
					// then terminate.
					_ = st.enc.Emit(events.ToolInvoked(callID, req.Name,
						mcp.Digest(marshalArgsDigest(req.Args))))
					o.emitOutcome(st, outcomes[i])
					return nil, fmt.Errorf("%w: %s", errPolicyViolation, blocked.Reason)
				}
				continue
			}
			return nil, fmt.Errorf("%w: sanitizer: %v", errInternal, err)
		}
		st.successiveBlocks = 0
	}

	// Announce dispatches in call order before any executes.
	for _, out := range outcomes {
		args := marshalArgsDigest(out.request.Args)
		_ = st.enc.Emit(events.ToolInvoked(out.callID, out.request.Name, mcp.Digest(args)))
	}

	// Execute allowed calls in parallel, each against its own pool.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxParallelToolCalls)
	for _, out := range outcomes {
		if out.status == events.ToolStatusBlocked {
			continue
		}
		out := out
		g.Go(func() error {
			text, err := o.invokeOne(gctx, out.request)
			if err != nil {
				// Fatal infrastructure errors abort the whole turn.
				if isFatalDispatchError(gctx, err) {
					return err
				}
				out.status = events.ToolStatusError
				out.text = fmt.Sprintf("Tool execution failed: %s", err)
				return nil
			}
			out.status = events.ToolStatusOK
			out.text = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Report results in call order and feed them back to the model.
	msgs := make([]llm.Message, 0, len(outcomes))
	for _, out := range outcomes {
		o.emitOutcome(st, out)

		switch out.status {
		case events.ToolStatusOK:
			st.toolFailures[out.request.Name] = 0
			st.resultTexts = append(st.resultTexts, out.text)
			if serverKey, _, err := mcp.SplitToolName(out.request.Name); err == nil {
				st.lastResultByServer[serverKey] = out.text
			}
		case events.ToolStatusError:
			st.toolFailures[out.request.Name]++
			if st.toolFailures[out.request.Name] >= maxSuccessiveToolFailures {
				return nil, fmt.Errorf("%w: %q failed %d times in a row",
					errToolError, out.request.Name, maxSuccessiveToolFailures)
			}
		}

		msgs = append(msgs, llm.Message{
			Role:       llm.RoleTool,
			Content:    out.text,
			ToolCallID: toolCallID(out.request),
			Name:       out.request.Name,
		})
	}
	return msgs, nil
}

// invokeOne acquires a client from the tool's pool for the duration of one
// call. A call cut short by cancellation or a transport failure releases the
// client as Broken so the pool destroys it.
func (o *Orchestrator) invokeOne(ctx context.Context, req llm.ToolRequest) (string, error) {
	serverKey, toolName, err := mcp.SplitToolName(req.Name)
	if err != nil {
		return "", err
	}

	serverCfg, err := o.registry.Get(serverKey)
	if err != nil {
		return "", err
	}

	p, err := o.pools.GetOrCreate(serverCfg)
	if err != nil {
		return "", err
	}

	client, err := p.Acquire(ctx)
	if err != nil {
		return "", err
	}

	result, err := client.Invoke(ctx, toolName, req.Args)
	if err != nil {
		if mcp.IsTransportError(err) || ctx.Err() != nil {
			p.Release(client, pool.OutcomeBroken)
		} else {
			p.Release(client, pool.OutcomeHealthy)
		}
		return "", err
	}
	p.Release(client, pool.OutcomeHealthy)

	text := result.Text
	if o.masker != nil {
		text = o.masker.Apply(text)
	}
	if result.IsError {
		return "", fmt.Errorf("tool reported error: %s", mcp.TruncateForBuffer(text, 2048))
	}
	return text, nil
}

// emitOutcome publishes the tool_result event and records the call digest
// for the session buffer commit.
func (o *Orchestrator) emitOutcome(st *runState, out *toolOutcome) {
	_ = st.enc.Emit(events.ToolResult(out.callID, out.status, mcp.Digest(out.text)))
	st.records = append(st.records, session.ToolCallRecord{
		Name:         out.request.Name,
		ArgsDigest:   mcp.Digest(marshalArgsDigest(out.request.Args)),
		ResultDigest: mcp.Digest(out.text),
	})
}

// isFatalDispatchError separates infrastructure failures (terminate the
// request) from per-call tool failures (feed back to the model).
func isFatalDispatchError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, pool.ErrPoolExhausted) ||
		errors.Is(err, pool.ErrPoolShuttingDown) ||
		errors.Is(err, pool.ErrStartupFailed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func toolCallID(req llm.ToolRequest) string {
	if req.ID != "" {
		return req.ID
	}
	return fmt.Sprintf("call_%d", req.Index)
}

func marshalArgsDigest(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}
