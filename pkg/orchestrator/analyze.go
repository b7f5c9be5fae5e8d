package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/llm"
	"github.com/satishdosapati/solutionbuilder-core/pkg/mcp"
	"github.com/satishdosapati/solutionbuilder-core/pkg/pool"
)

// runAnalyze turns a natural-language requirements paragraph into a
// structured analysis: recommendations, architecture description, a diagram
// artifact, and a rough monthly cost.
//
// State machine: Start → Researching → Structuring → Diagramming → Costing →
// Complete. Costing folds into Structuring when no pricing server is
// configured.
func (o *Orchestrator) runAnalyze(ctx context.Context, req Request, enc *events.StreamEncoder) error {
	st, err := o.beginRun(ModeAnalyze, req, enc)
	if err != nil {
		return err
	}

	if len(req.Constraints) > 0 {
		st.msgs = append(st.msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Constraints: " + formatConstraints(req.Constraints),
		})
	}

	// Researching
	_ = enc.Emit(events.Thinking("researching", "Researching relevant AWS services"))
	st.tools, err = o.collectTools(ctx, o.opts.DocsKey)
	if err != nil {
		return err
	}
	research, err := o.planLoop(ctx, st, analyzeResearchPrompt)
	if err != nil {
		return err
	}

	// Structuring
	_ = enc.Emit(events.Thinking("structuring", "Structuring the analysis"))
	analysis, err := o.structureAnalysis(ctx, st, research.Text)
	if err != nil {
		return err
	}

	// Diagramming
	_ = enc.Emit(events.Thinking("diagramming", "Rendering the architecture diagram"))
	o.renderDiagram(ctx, st, analysis.DiagramSource)

	// Costing — only when a dedicated pricing server exists; otherwise the
	// structuring step already produced the estimate.
	if o.registry.Has(o.opts.PricingKey) {
		_ = enc.Emit(events.Thinking("costing", "Estimating monthly cost"))
		o.estimateCosts(ctx, st, analysis)
	}

	payload := struct {
		AnalysisResult
		DiagramAttached bool `json:"diagram_attached"`
	}{*analysis, st.diagramEmitted}

	raw, err := json.Marshal(analysis)
	if err == nil {
		st.sess.Lock()
		st.sess.SetLastAnalysis(raw)
		st.sess.SetWorkingSpec(req.Input)
		st.sess.Unlock()
	}

	o.commitRun(st, analysis.ExecutiveSummary, nil)
	return enc.Emit(events.Complete(ModeAnalyze, st.req.SessionID, payload))
}

// structureAnalysis asks the oracle for schema-conforming JSON, with one
// corrective retry on parse failure.
func (o *Orchestrator) structureAnalysis(ctx context.Context, st *runState, research string) (*AnalysisResult, error) {
	msgs := append([]llm.Message{}, st.msgs...)
	msgs = append(msgs,
		llm.Message{Role: llm.RoleAssistant, Content: research},
		llm.Message{Role: llm.RoleUser, Content: analyzeStructuringPrompt},
	)

	for attempt := 0; attempt < 2; attempt++ {
		turn, err := o.oracle.Plan(ctx, llm.PlanRequest{Messages: msgs})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: structuring: %v", errInternal, err)
		}

		analysis, parseErr := parseAnalysis(turn.Text)
		if parseErr == nil {
			return analysis, nil
		}

		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, Content: turn.Text},
			llm.Message{Role: llm.RoleUser, Content: "That was not valid JSON for the requested schema (" +
				parseErr.Error() + "). Reply with only the corrected JSON object."},
		)
	}
	return nil, fmt.Errorf("%w: structuring step produced no schema-conforming JSON", errInternal)
}

// parseAnalysis decodes the structuring JSON, tolerating code fences.
func parseAnalysis(text string) (*AnalysisResult, error) {
	text = stripCodeFence(text)

	var analysis AnalysisResult
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, err
	}
	if analysis.ExecutiveSummary == "" {
		return nil, fmt.Errorf("missing executive_summary")
	}
	if len(analysis.ServiceRecommendations) == 0 {
		return nil, fmt.Errorf("missing service_recommendations")
	}
	return &analysis, nil
}

// renderDiagram invokes the diagram server and emits the artifact. The
// returned image — PNG bytes or SVG text — is forwarded untouched; a diagram
// failure degrades the analysis rather than failing it.
func (o *Orchestrator) renderDiagram(ctx context.Context, st *runState, source string) {
	if source == "" || !o.registry.Has(o.opts.DiagramKey) {
		return
	}

	qualified := mcp.QualifiedName(o.opts.DiagramKey, o.opts.DiagramTool)
	if err := o.sanitizer.Check(st.mode, qualified); err != nil {
		o.logger.Warn("Diagram tool blocked by policy", "tool", qualified, "error", err)
		return
	}

	callID := st.nextCallID
	st.nextCallID++
	args := map[string]any{"source": source}
	_ = st.enc.Emit(events.ToolInvoked(callID, qualified, mcp.Digest(marshalArgsDigest(args))))

	result, err := o.invokeArtifact(ctx, o.opts.DiagramKey, o.opts.DiagramTool, args)
	if err != nil {
		_ = st.enc.Emit(events.ToolResult(callID, events.ToolStatusError, mcp.Digest(err.Error())))
		o.logger.Warn("Diagram generation failed", "error", err)
		return
	}
	_ = st.enc.Emit(events.ToolResult(callID, events.ToolStatusOK, mcp.Digest(result.Text)))

	artifact := events.ArtifactPayload{Type: events.TypeArtifact, Kind: "diagram"}
	switch {
	case len(result.Binary) > 0:
		artifact.BytesBase64 = base64.StdEncoding.EncodeToString(result.Binary)
		artifact.MimeType = result.MimeType
	case strings.Contains(result.Text, "<svg"):
		artifact.Text = result.Text
		artifact.MimeType = "image/svg+xml"
	default:
		artifact.Text = result.Text
	}
	_ = st.enc.Emit(artifact)
	st.diagramEmitted = true
}

// estimateCosts invokes the pricing server and folds its answer into the
// analysis cost insights. Failures degrade to the structuring estimate.
func (o *Orchestrator) estimateCosts(ctx context.Context, st *runState, analysis *AnalysisResult) {
	services := make([]string, 0, len(analysis.ServiceRecommendations))
	for _, rec := range analysis.ServiceRecommendations {
		services = append(services, rec.Service)
	}

	result, err := o.invokeArtifact(ctx, o.opts.PricingKey, o.opts.PricingTool,
		map[string]any{"services": services})
	if err != nil {
		o.logger.Warn("Cost estimation failed, keeping structuring estimate", "error", err)
		return
	}

	var priced CostInsights
	if json.Unmarshal([]byte(stripCodeFence(result.Text)), &priced) == nil &&
		priced.MonthlyEstimateUSD > 0 {
		analysis.CostInsights = priced
		return
	}
	analysis.CostInsights.Notes = strings.TrimSpace(
		analysis.CostInsights.Notes + "\n" + mcp.TruncateForBuffer(result.Text, 2048))
}

// invokeArtifact performs a direct (non-model-planned) tool call and returns
// the raw result.
func (o *Orchestrator) invokeArtifact(ctx context.Context, serverKey, toolName string, args map[string]any) (*mcp.ToolResult, error) {
	serverCfg, err := o.registry.Get(serverKey)
	if err != nil {
		return nil, err
	}
	p, err := o.pools.GetOrCreate(serverCfg)
	if err != nil {
		return nil, err
	}
	client, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.Invoke(ctx, toolName, args)
	if err != nil {
		if mcp.IsTransportError(err) || ctx.Err() != nil {
			p.Release(client, pool.OutcomeBroken)
		} else {
			p.Release(client, pool.OutcomeHealthy)
		}
		return nil, err
	}
	p.Release(client, pool.OutcomeHealthy)

	if o.masker != nil {
		result.Text = o.masker.Apply(result.Text)
	}
	if result.IsError {
		return nil, fmt.Errorf("tool reported error: %s", mcp.TruncateForBuffer(result.Text, 1024))
	}
	return result, nil
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```yaml")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func formatConstraints(constraints map[string]string) string {
	parts := make([]string, 0, len(constraints))
	for k, v := range constraints {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, ", ")
}
