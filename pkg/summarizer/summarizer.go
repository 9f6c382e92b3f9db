// Package summarizer implements the language-model operations of the
// analysis stages: call classification, criterion evaluation and
// summary rollups.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/pkg/anthropic"
)

// Summarizer runs model-backed analysis over call dialogues.
type Summarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func New(client anthropic.Client, modelID string, maxTokens int64) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Summarizer{client: client, model: modelID, maxTokens: maxTokens}
}

func (s *Summarizer) complete(ctx context.Context, phase, system, prompt string) (string, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(s.model, phase)
	return strings.TrimSpace(resp.Text), nil
}

// decodeJSON strips an optional code fence and unmarshals the reply.
func decodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```"); ok {
		after = strings.TrimPrefix(after, "json")
		if body, _, ok := strings.Cut(after, "```"); ok {
			text = strings.TrimSpace(body)
		}
	}
	return json.Unmarshal([]byte(text), out)
}

const classifySystem = `You classify transcribed phone calls into one of the given categories.
Reply with JSON only: {"category_id": <id>}.
If no category fits, use the id 0.`

// Classify picks the category a dialogue belongs to. A zero id means
// none of the categories fit.
func (s *Summarizer) Classify(ctx context.Context, dialogue string, categories []model.Category) (int, error) {
	var b strings.Builder
	b.WriteString("Categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "%d. %s: %s\n", c.ID, c.Name, c.Prompt)
	}
	b.WriteString("\nDialogue:\n")
	b.WriteString(dialogue)

	text, err := s.complete(ctx, "classify", classifySystem, b.String())
	if err != nil {
		return 0, err
	}

	var reply struct {
		CategoryID int `json:"category_id"`
	}
	if err := decodeJSON(text, &reply); err != nil {
		return 0, eris.Wrapf(err, "decoding classification reply %q", text)
	}
	return reply.CategoryID, nil
}

const evaluateSystem = `You evaluate one aspect of a transcribed phone call.
Reply with JSON only: {"text": <string or null>, "evaluation": <number 1-5 or null>}.
Set "text" to null unless a text description is requested.
Set "evaluation" to null unless a score is requested or the dialogue gives no basis for one.`

// Evaluate runs one criterion over the dialogue. The criterion's flags
// decide whether the result carries a text description, a numeric
// score, or both.
func (s *Summarizer) Evaluate(ctx context.Context, dialogue string, criterion model.Criterion) (model.CriterionResult, error) {
	result := model.CriterionResult{ID: criterion.ID, Name: criterion.Name}

	var b strings.Builder
	fmt.Fprintf(&b, "Criterion: %s\n%s\n\n", criterion.Name, criterion.Prompt)
	if criterion.ShowTextDescription {
		b.WriteString("A text description is requested.\n")
	}
	if criterion.EvaluateCriterion {
		b.WriteString("A numeric score from 1 to 5 is requested.\n")
	}
	b.WriteString("\nDialogue:\n")
	b.WriteString(dialogue)

	text, err := s.complete(ctx, "evaluate", evaluateSystem, b.String())
	if err != nil {
		return result, err
	}

	var reply struct {
		Text       *string  `json:"text"`
		Evaluation *float64 `json:"evaluation"`
	}
	if err := decodeJSON(text, &reply); err != nil {
		return result, eris.Wrapf(err, "decoding evaluation reply %q", text)
	}
	if reply.Text != nil {
		result.Text = *reply.Text
	}
	if criterion.EvaluateCriterion {
		result.Evaluation = reply.Evaluation
	}
	return result, nil
}

const summarizeSystem = `You summarize transcribed phone calls.
Write a concise factual summary of the conversation in the language it was held in.
Reply with the summary text only.`

// SummarizeDialogue produces a short free-text summary of one call.
func (s *Summarizer) SummarizeDialogue(ctx context.Context, dialogue string) (string, error) {
	return s.complete(ctx, "summarize", summarizeSystem, dialogue)
}

const combineSystem = `You merge several notes about the same subject into one.
Write a single coherent text that keeps every distinct fact and drops repetition.
Reply with the merged text only, at most %d words.`

// Combine merges several texts about the same subject into one rollup
// of at most maxWords words. Callers must handle the zero and one text
// cases themselves; combining a single text through the model would
// only paraphrase it.
func (s *Summarizer) Combine(ctx context.Context, texts []string, maxWords int) (string, error) {
	var b strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&b, "Note %d:\n%s\n\n", i+1, t)
	}
	return s.complete(ctx, "combine", fmt.Sprintf(combineSystem, maxWords), b.String())
}
