package dialogue

import (
	"testing"
	"time"

	"github.com/callsense/callsense/pkg/recognizer"
)

func u(channel int, start time.Duration, text string) recognizer.Utterance {
	return recognizer.Utterance{Channel: channel, Start: start, Text: text}
}

func TestBuildAlternatingChannels(t *testing.T) {
	got := Build([]recognizer.Utterance{
		u(0, 0, "a"),
		u(1, time.Second, "b"),
		u(0, 2*time.Second, "c"),
	})
	want := "0: a\n1: b\n0: c"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuildMergesSameChannel(t *testing.T) {
	got := Build([]recognizer.Utterance{
		u(0, 0, "a"),
		u(0, time.Second, "b"),
	})
	want := "0: a b"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuildOrdersByStartTime(t *testing.T) {
	got := Build([]recognizer.Utterance{
		u(1, 3*time.Second, "later"),
		u(0, time.Second, "first"),
	})
	want := "0: first\n1: later"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuildStableForEqualStarts(t *testing.T) {
	in := []recognizer.Utterance{
		u(0, time.Second, "x"),
		u(1, time.Second, "y"),
	}
	want := Build(in)
	for range 10 {
		if got := Build(in); got != want {
			t.Fatalf("Build() not deterministic: %q vs %q", got, want)
		}
	}
	if want != "0: x\n1: y" {
		t.Errorf("Build() = %q, want %q", want, "0: x\n1: y")
	}
}

func TestBuildSkipsBlankUtterances(t *testing.T) {
	got := Build([]recognizer.Utterance{
		u(0, 0, "  "),
		u(1, time.Second, "hello"),
		u(0, 2*time.Second, ""),
	})
	want := "1: hello"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuildEmpty(t *testing.T) {
	if got := Build(nil); got != "" {
		t.Errorf("Build(nil) = %q, want empty", got)
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	in := []recognizer.Utterance{
		u(1, 2*time.Second, "b"),
		u(0, time.Second, "a"),
	}
	Build(in)
	if in[0].Text != "b" || in[1].Text != "a" {
		t.Error("Build() reordered its input slice")
	}
}
