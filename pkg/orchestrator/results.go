package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BrainstormResult is the complete-event payload for brainstorm mode.
type BrainstormResult struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
	FollowUps []string `json:"follow_ups"`
}

// AnalysisResult is the structured output of analyze mode. The structuring
// step must produce JSON conforming to this shape.
type AnalysisResult struct {
	ExecutiveSummary       string                  `json:"executive_summary"`
	ServiceRecommendations []ServiceRecommendation `json:"service_recommendations"`
	ArchitectureSections   []ArchitectureSection   `json:"architecture_sections"`
	CostInsights           CostInsights            `json:"cost_insights"`

	// DiagramSource is the small source program handed to the diagram
	// server. Not part of the client payload contract, but carried so the
	// diagramming step needs no second planning round.
	DiagramSource string `json:"diagram_source,omitempty"`
}

// ServiceRecommendation names one recommended cloud service.
type ServiceRecommendation struct {
	Service string `json:"service"`
	Purpose string `json:"purpose"`
	Notes   string `json:"notes,omitempty"`
}

// ArchitectureSection is one titled block of the architecture description.
type ArchitectureSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CostInsights is the rough monthly cost picture.
type CostInsights struct {
	MonthlyEstimateUSD float64  `json:"monthly_estimate_usd"`
	Assumptions        []string `json:"assumptions,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

// GenerateResult is the complete-event payload for generate mode.
type GenerateResult struct {
	Template   string          `json:"template"`
	Summary    TemplateSummary `json:"summary"`
	DeployHint string          `json:"deploy_hint"`
	Validation string          `json:"validation,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// TemplateSummary enumerates what the template declares.
type TemplateSummary struct {
	Resources  []ResourceSummary `json:"resources"`
	Parameters []string          `json:"parameters"`
	Outputs    []string          `json:"outputs"`
}

// ResourceSummary is one declared resource: its logical id and type.
type ResourceSummary struct {
	LogicalID string `json:"logical_id"`
	Type      string `json:"type"`
}

// summarizeTemplate parses a CloudFormation YAML document and enumerates its
// resources, parameters, and outputs. A template that fails to parse yields
// an empty summary rather than an error: the template text itself is still
// delivered to the client.
func summarizeTemplate(templateText string) TemplateSummary {
	var doc struct {
		Resources map[string]struct {
			Type string `yaml:"Type"`
		} `yaml:"Resources"`
		Parameters map[string]any `yaml:"Parameters"`
		Outputs    map[string]any `yaml:"Outputs"`
	}

	summary := TemplateSummary{
		Resources:  []ResourceSummary{},
		Parameters: []string{},
		Outputs:    []string{},
	}
	if err := yaml.Unmarshal([]byte(templateText), &doc); err != nil {
		return summary
	}

	for id, res := range doc.Resources {
		summary.Resources = append(summary.Resources, ResourceSummary{
			LogicalID: id, Type: res.Type,
		})
	}
	for name := range doc.Parameters {
		summary.Parameters = append(summary.Parameters, name)
	}
	for name := range doc.Outputs {
		summary.Outputs = append(summary.Outputs, name)
	}
	sort.Slice(summary.Resources, func(i, j int) bool {
		return summary.Resources[i].LogicalID < summary.Resources[j].LogicalID
	})
	sort.Strings(summary.Parameters)
	sort.Strings(summary.Outputs)
	return summary
}

// deployHint builds the deploy-command suggestion for a generated template.
func deployHint(stackName string) string {
	if stackName == "" {
		stackName = "my-stack"
	}
	return fmt.Sprintf(
		"aws cloudformation deploy --template-file template.yaml --stack-name %s --capabilities CAPABILITY_NAMED_IAM",
		sanitizeStackName(stackName))
}

func sanitizeStackName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			sb.WriteByte('-')
		}
	}
	out := strings.Trim(sb.String(), "-")
	if out == "" {
		return "my-stack"
	}
	if len(out) > 48 {
		out = out[:48]
	}
	return out
}
