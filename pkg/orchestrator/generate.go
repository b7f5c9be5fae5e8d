package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/llm"
	"github.com/satishdosapati/solutionbuilder-core/pkg/mcp"
)

// runGenerate produces an infrastructure-as-code template (CloudFormation
// YAML) plus deployment instructions. State machine: Start → Planning →
// Generating → Validating → Complete.
//
// Invariants: no dispatched call may mutate external cloud resources (the
// sanitizer enforces this), and a revision request carries the prior
// template into the generation prompt verbatim.
func (o *Orchestrator) runGenerate(ctx context.Context, req Request, enc *events.StreamEncoder) error {
	st, err := o.beginRun(ModeGenerate, req, enc)
	if err != nil {
		return err
	}

	// Template context carry-over: an explicit ExistingTemplate wins;
	// otherwise the session's last generated template seeds the revision.
	priorTemplate := req.ExistingTemplate
	if priorTemplate == "" {
		st.sess.Lock()
		priorTemplate = st.sess.LastTemplate()
		st.sess.Unlock()
	}
	if priorTemplate != "" {
		st.msgs = append(st.msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: generateRevisionPreamble + priorTemplate,
		})
	}

	// Planning
	_ = enc.Emit(events.Thinking("planning", "Planning the template"))
	planTurn, err := o.oracle.Plan(ctx, llm.PlanRequest{
		SystemPrompt: generatePlanningPrompt,
		Messages:     st.msgs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: planning: %v", errInternal, err)
	}
	st.msgs = append(st.msgs, llm.Message{Role: llm.RoleAssistant, Content: planTurn.Text})

	// Generating
	_ = enc.Emit(events.Thinking("generating", "Generating the template"))
	st.tools, err = o.collectTools(ctx, o.opts.TemplateKey, o.opts.DiagramKey, o.opts.PricingKey)
	if err != nil {
		return err
	}
	finalTurn, err := o.planLoop(ctx, st, generateSystemPrompt)
	if err != nil {
		return err
	}

	templateText := extractTemplate(st, o.opts.TemplateKey, finalTurn.Text)
	if templateText == "" {
		return fmt.Errorf("%w: generation produced no template", errToolError)
	}

	// Validating
	_ = enc.Emit(events.Thinking("validating", "Validating the template"))
	validation := o.validateTemplate(ctx, st, templateText)

	_ = enc.Emit(events.ArtifactPayload{
		Type:     events.TypeArtifact,
		Kind:     "template",
		MimeType: "application/yaml",
		Text:     templateText,
	})

	result := GenerateResult{
		Template:   templateText,
		Summary:    summarizeTemplate(templateText),
		DeployHint: deployHint(stackNameFrom(st.req.Input)),
		Validation: validation,
		Notes:      strings.TrimSpace(finalTurn.Text),
	}

	st.sess.Lock()
	st.sess.SetLastTemplate(templateText)
	st.sess.Unlock()

	o.commitRun(st, result.Notes, nil)
	return enc.Emit(events.Complete(ModeGenerate, st.req.SessionID, result))
}

// extractTemplate prefers the template server's last output; when the model
// wrote the template inline instead, the fenced YAML block from its final
// text is used.
func extractTemplate(st *runState, templateKey, finalText string) string {
	if text := st.lastResultByServer[templateKey]; text != "" {
		return stripCodeFence(text)
	}
	return extractYAMLBlock(finalText)
}

// extractYAMLBlock pulls the first fenced YAML block out of prose, or the
// whole text when it already looks like a bare CloudFormation document.
func extractYAMLBlock(text string) string {
	if idx := strings.Index(text, "```yaml"); idx >= 0 {
		rest := text[idx+len("```yaml"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "AWSTemplateFormatVersion") ||
		strings.HasPrefix(trimmed, "Resources:") {
		return trimmed
	}
	return ""
}

// validateTemplate runs the template server's validation tool when it is
// configured. Validation problems are reported, not fatal: the user still
// receives the template.
func (o *Orchestrator) validateTemplate(ctx context.Context, st *runState, templateText string) string {
	if !o.registry.Has(o.opts.TemplateKey) {
		return ""
	}
	qualified := mcp.QualifiedName(o.opts.TemplateKey, o.opts.ValidateTool)
	if err := o.sanitizer.Check(st.mode, qualified); err != nil {
		return ""
	}

	result, err := o.invokeArtifact(ctx, o.opts.TemplateKey, o.opts.ValidateTool,
		map[string]any{"template": templateText})
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		o.logger.Warn("Template validation unavailable", "error", err)
		return ""
	}
	return mcp.TruncateForBuffer(result.Text, 2048)
}

// stackNameFrom derives a stack-name hint from the first words of the
// request input.
func stackNameFrom(input string) string {
	words := strings.Fields(input)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, "-")
}
