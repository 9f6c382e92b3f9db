// Package dialogue reconstructs readable conversations from recognized
// utterances and drives the recognition stage of the pipeline.
package dialogue

import (
	"sort"
	"strconv"
	"strings"

	"github.com/callsense/callsense/pkg/recognizer"
)

// Build renders utterances as a dialogue transcript. Utterances are
// ordered by start time, consecutive phrases on the same channel are
// merged into one line, and each line is prefixed with its channel
// number. The result is deterministic for a given input.
func Build(utterances []recognizer.Utterance) string {
	if len(utterances) == 0 {
		return ""
	}

	ordered := make([]recognizer.Utterance, len(utterances))
	copy(ordered, utterances)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	var lines []string
	var b strings.Builder
	channel := -1

	flush := func() {
		if b.Len() > 0 {
			lines = append(lines, strconv.Itoa(channel)+": "+b.String())
			b.Reset()
		}
	}

	for _, u := range ordered {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		if u.Channel != channel {
			flush()
			channel = u.Channel
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	flush()

	return strings.Join(lines, "\n")
}
