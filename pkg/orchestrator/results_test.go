package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeTemplate(t *testing.T) {
	summary := summarizeTemplate(generatedTemplate)

	require.Len(t, summary.Resources, 2)
	assert.Equal(t, "AppBucket", summary.Resources[0].LogicalID)
	assert.Equal(t, "AWS::S3::Bucket", summary.Resources[0].Type)
	assert.Equal(t, "AppFunction", summary.Resources[1].LogicalID)
	assert.Equal(t, []string{"EnvName"}, summary.Parameters)
	assert.Equal(t, []string{"BucketName"}, summary.Outputs)
}

func TestSummarizeTemplateMalformedYieldsEmpty(t *testing.T) {
	summary := summarizeTemplate("not: [valid: yaml")
	assert.Empty(t, summary.Resources)
	assert.Empty(t, summary.Parameters)
	assert.Empty(t, summary.Outputs)
}

func TestExtractYAMLBlock(t *testing.T) {
	prose := "Here is the template:\n```yaml\nResources:\n  B:\n    Type: AWS::S3::Bucket\n```\nDeploy it."
	assert.Equal(t, "Resources:\n  B:\n    Type: AWS::S3::Bucket", extractYAMLBlock(prose))

	bare := "AWSTemplateFormatVersion: \"2010-09-09\"\nResources: {}"
	assert.Equal(t, bare, extractYAMLBlock(bare))

	assert.Equal(t, "", extractYAMLBlock("no template in this prose"))
}

func TestDeployHint(t *testing.T) {
	hint := deployHint("Photo App Storage")
	assert.Contains(t, hint, "aws cloudformation deploy")
	assert.Contains(t, hint, "--stack-name photo-app-storage")

	assert.Contains(t, deployHint(""), "--stack-name my-stack")
	assert.Contains(t, deployHint("???!!!"), "--stack-name my-stack")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
