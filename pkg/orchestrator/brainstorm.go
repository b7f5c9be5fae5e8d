package orchestrator

import (
	"context"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
)

// runBrainstorm answers an AWS question with citations and suggested
// follow-ups. State machine: Start → Researching → Answering → Complete,
// with Failed reachable from any state (handled by Run).
//
// The oracle only sees the documentation server's tool family.
func (o *Orchestrator) runBrainstorm(ctx context.Context, req Request, enc *events.StreamEncoder) error {
	st, err := o.beginRun(ModeBrainstorm, req, enc)
	if err != nil {
		return err
	}
	_ = enc.Emit(events.Thinking("researching", "Searching AWS documentation"))

	st.tools, err = o.collectTools(ctx, o.opts.DocsKey)
	if err != nil {
		return err
	}

	turn, err := o.planLoop(ctx, st, brainstormSystemPrompt)
	if err != nil {
		return err
	}

	_ = enc.Emit(events.Thinking("answering", "Composing the answer"))

	answer, followUps := splitFollowUps(turn.Text)
	result := BrainstormResult{
		Answer:    answer,
		Citations: citedURLs(turn.Text, st.resultTexts),
		FollowUps: followUps,
	}
	if result.Citations == nil {
		result.Citations = []string{}
	}
	if result.FollowUps == nil {
		result.FollowUps = []string{}
	}

	o.commitRun(st, answer, result.Citations)
	return enc.Emit(events.Complete(ModeBrainstorm, st.req.SessionID, result))
}
