package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/satishdosapati/solutionbuilder-core/pkg/mcp"
)

// OpenAIConfig configures the OpenAI-compatible oracle. Works with any
// endpoint that speaks the chat completions protocol.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // empty means the provider default
	Model       string
	MaxTokens   int
	Temperature *float32
	HTTPTimeout time.Duration
}

// NewOpenAIConfigFromEnv reads OPENAI_API_KEY, OPENAI_BASE_URL and
// OPENAI_MODEL. The HTTP timeout is fixed at 300 seconds; no environment
// variable sets it.
func NewOpenAIConfigFromEnv() (*OpenAIConfig, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openailib.GPT4o
	}
	cfg := &OpenAIConfig{
		APIKey:      key,
		BaseURL:     os.Getenv("OPENAI_BASE_URL"),
		Model:       model,
		HTTPTimeout: 300 * time.Second,
	}
	return cfg, nil
}

// OpenAIOracle implements Oracle over the OpenAI-compatible protocol with
// native function calling.
type OpenAIOracle struct {
	client *openailib.Client
	cfg    *OpenAIConfig
}

// NewOpenAIOracle creates an oracle from config.
func NewOpenAIOracle(cfg *OpenAIConfig) (*OpenAIOracle, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("openai oracle requires an API key")
	}
	clientConfig := openailib.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	// Prevent indefinite hangs when the API is unresponsive.
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIOracle{
		client: openailib.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Plan runs one non-streaming planning step.
func (o *OpenAIOracle) Plan(ctx context.Context, req PlanRequest) (*Turn, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("LLM plan failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from LLM")
	}

	choice := resp.Choices[0].Message
	turn := &Turn{Text: choice.Content}
	for i, tc := range choice.ToolCalls {
		turn.ToolRequests = append(turn.ToolRequests, convertToolCall(i, tc))
	}
	return turn, nil
}

// StreamPlan runs one planning step, forwarding content deltas as they
// arrive and accumulating tool-call fragments by index.
func (o *OpenAIOracle) StreamPlan(ctx context.Context, req PlanRequest, onDelta StreamFunc) (*Turn, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("LLM stream failed to open: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	partial := map[int]*partialCall{}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LLM stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			text.WriteString(delta.Content)
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			pc, ok := partial[idx]
			if !ok {
				pc = &partialCall{}
				partial[idx] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name += tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
		}
	}

	turn := &Turn{Text: text.String()}
	indexes := make([]int, 0, len(partial))
	for idx := range partial {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for i, idx := range indexes {
		pc := partial[idx]
		args, err := mcp.ParseActionInput(pc.args.String())
		if err != nil {
			args = map[string]any{}
		}
		turn.ToolRequests = append(turn.ToolRequests, ToolRequest{
			Index: i,
			ID:    pc.id,
			Name:  mcp.NormalizeToolName(pc.name),
			Args:  args,
		})
	}
	return turn, nil
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// buildRequest converts a PlanRequest into the provider wire shape.
// Tool names are surfaced as "server__tool" (function-name charset) and
// mapped back to "server.tool" on the way out.
func (o *OpenAIOracle) buildRequest(req PlanRequest, stream bool) openailib.ChatCompletionRequest {
	msgs := make([]openailib.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openailib.ChatCompletionMessage{
			Role:    openailib.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		om := openailib.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == RoleTool && m.ToolCallID != "" {
			om.ToolCallID = m.ToolCallID
			if m.Name != "" {
				om.Name = mcp.FunctionName(m.Name)
			}
		}
		if m.Role == RoleAssistant && len(m.ToolRequests) > 0 {
			for _, tr := range m.ToolRequests {
				args, err := marshalArgs(tr.Args)
				if err != nil {
					args = "{}"
				}
				om.ToolCalls = append(om.ToolCalls, openailib.ToolCall{
					ID:   tr.ID,
					Type: openailib.ToolTypeFunction,
					Function: openailib.FunctionCall{
						Name:      mcp.FunctionName(tr.Name),
						Arguments: args,
					},
				})
			}
		}
		msgs = append(msgs, om)
	}

	out := openailib.ChatCompletionRequest{
		Model:    o.cfg.Model,
		Messages: msgs,
		Stream:   stream,
	}
	if o.cfg.Temperature != nil {
		out.Temperature = *o.cfg.Temperature
	}
	if o.cfg.MaxTokens > 0 {
		out.MaxTokens = o.cfg.MaxTokens
	}

	for _, t := range req.Tools {
		var params any
		if len(t.Parameters) > 0 {
			params = t.Parameters
		} else {
			params = emptyObjectSchema
		}
		out.Tools = append(out.Tools, openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        mcp.FunctionName(t.Name),
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

var emptyObjectSchema = map[string]any{"type": "object", "properties": map[string]any{}}

func convertToolCall(index int, tc openailib.ToolCall) ToolRequest {
	args, err := mcp.ParseActionInput(tc.Function.Arguments)
	if err != nil {
		args = map[string]any{}
	}
	return ToolRequest{
		Index: index,
		ID:    tc.ID,
		Name:  mcp.NormalizeToolName(tc.Function.Name),
		Args:  args,
	}
}

func marshalArgs(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
