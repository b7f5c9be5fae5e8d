package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/satishdosapati/solutionbuilder-core/pkg/llm"
	"github.com/satishdosapati/solutionbuilder-core/pkg/mcp"
	"github.com/satishdosapati/solutionbuilder-core/pkg/pool"
)

// collectTools lists the tools the given servers advertise and surfaces them
// to the oracle under fully-qualified names. Servers missing from the
// registry are skipped (a pricing server is optional, for example); a server
// that fails to list logs and contributes nothing — partial tools beat none.
func (o *Orchestrator) collectTools(ctx context.Context, serverKeys ...string) ([]llm.ToolDef, error) {
	var defs []llm.ToolDef

	for _, key := range serverKeys {
		serverCfg, err := o.registry.Get(key)
		if err != nil {
			continue
		}

		p, err := o.pools.GetOrCreate(serverCfg)
		if err != nil {
			return nil, err
		}

		client, err := p.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		tools, err := client.ListTools(ctx)
		if err != nil {
			if mcp.IsTransportError(err) || ctx.Err() != nil {
				p.Release(client, pool.OutcomeBroken)
			} else {
				p.Release(client, pool.OutcomeHealthy)
			}
			o.logger.Warn("Failed to list tools from MCP server",
				"server", key, "error", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		p.Release(client, pool.OutcomeHealthy)

		for _, tool := range tools {
			if !o.toolAllowed(serverCfg.AllowPrefixes, mcp.QualifiedName(key, tool.Name)) {
				continue
			}
			var schema json.RawMessage
			if tool.InputSchema != nil {
				if data, err := json.Marshal(tool.InputSchema); err == nil {
					schema = data
				}
			}
			defs = append(defs, llm.ToolDef{
				Name:        mcp.QualifiedName(key, tool.Name),
				Description: tool.Description,
				Parameters:  schema,
			})
		}
	}
	return defs, nil
}

// toolAllowed applies a server's own allow-prefix filter to a fully-qualified
// "server.tool" name. Empty filter admits everything.
func (o *Orchestrator) toolAllowed(prefixes []string, toolName string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if len(toolName) >= len(p) && toolName[:len(p)] == p {
			return true
		}
	}
	return false
}
