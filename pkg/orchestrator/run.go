package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/llm"
	"github.com/satishdosapati/solutionbuilder-core/pkg/session"
)

// beginRun resolves the session, appends the user turn under the session's
// commit lock, and seeds the working transcript from the context buffer.
//
// An empty input is rejected before any buffer mutation so the request is a
// no-op on the session.
func (o *Orchestrator) beginRun(mode string, req Request, enc *events.StreamEncoder) (*runState, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, fmt.Errorf("%w: request carries no input text", errEmptyInput)
	}

	sess := o.sessions.GetOrCreate(req.SessionID)
	req.SessionID = sess.ID

	sess.Lock()
	sess.Touch(mode, time.Now())
	sess.Buffer().Append(session.Turn{Role: session.RoleUser, Content: req.Input})
	turns := sess.Buffer().Turns()
	sess.Unlock()

	st := newRunState(mode, req, sess, enc)
	st.msgs = bufferMessages(turns)
	return st, nil
}

// commitRun appends the agent turn (with tool-call digests and citations) to
// the context buffer under the session lock. Buffer merges across concurrent
// requests on one session are ordered by this commit.
func (o *Orchestrator) commitRun(st *runState, agentText string, citations []string) {
	st.sess.Lock()
	st.sess.Buffer().Append(session.Turn{
		Role:      session.RoleAgent,
		Content:   agentText,
		ToolCalls: st.records,
		Citations: citations,
	})
	st.sess.Touch(st.mode, time.Now())
	st.sess.Unlock()
}

// bufferMessages converts buffer turns into oracle transcript messages.
// Tool-call records and citations stay in the buffer; only roles and text
// cross the boundary.
func bufferMessages(turns []session.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		var role llm.Role
		switch t.Role {
		case session.RoleSystem:
			role = llm.RoleSystem
		case session.RoleUser:
			role = llm.RoleUser
		default:
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return msgs
}
