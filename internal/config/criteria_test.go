package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "criteria.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCriteriaSeed(t *testing.T) {
	path := writeSeed(t, `
groups:
  - name: Quality
criteria:
  - name: Greeting
    group: Quality
    prompt: Did the agent greet the client?
    evaluate_criterion: true
    include_in_score: true
  - name: Needs
    group: Quality
    prompt: What does the client need?
    show_text_description: true
    include_in_entity_description: true
categories:
  - name: Sales
    prompt: Classify the call
    criteria: [Greeting, Needs]
`)

	seed, err := LoadCriteriaSeed(path)
	require.NoError(t, err)

	require.Len(t, seed.Groups, 1)
	assert.Equal(t, "Quality", seed.Groups[0].Name)

	require.Len(t, seed.Criteria, 2)
	assert.Equal(t, "Greeting", seed.Criteria[0].Name)
	assert.Equal(t, "Quality", seed.Criteria[0].Group)
	assert.True(t, seed.Criteria[0].EvaluateCriterion)
	assert.False(t, seed.Criteria[0].IncludeInEntityDescription)
	assert.True(t, seed.Criteria[1].ShowTextDescription)
	assert.True(t, seed.Criteria[1].IncludeInEntityDescription)

	require.Len(t, seed.Categories, 1)
	assert.Equal(t, []string{"Greeting", "Needs"}, seed.Categories[0].Criteria)
}

func TestLoadCriteriaSeedUnknownGroup(t *testing.T) {
	path := writeSeed(t, `
groups:
  - name: Quality
criteria:
  - name: Greeting
    group: Missing
    prompt: Did the agent greet the client?
`)

	_, err := LoadCriteriaSeed(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown group")
}

func TestLoadCriteriaSeedUnknownCriterion(t *testing.T) {
	path := writeSeed(t, `
groups:
  - name: Quality
criteria:
  - name: Greeting
    group: Quality
    prompt: Did the agent greet the client?
categories:
  - name: Sales
    prompt: Classify the call
    criteria: [Missing]
`)

	_, err := LoadCriteriaSeed(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown criterion")
}
