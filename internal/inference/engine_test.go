package inference

import (
	"testing"
	"time"

	"github.com/agentforge/agentforge/internal/model"
)

func TestClassifyWaitingInput(t *testing.T) {
	e := New(DefaultRuleset())
	got := e.Classify(Input{
		Capture:        "Running...\nDo you want to proceed?\n❯ 1. Yes\n  2. No",
		PreviousStatus: model.StatusWorking,
	})
	if got != model.StatusWaitingInput {
		t.Errorf("Classify() = %v, want waiting_input", got)
	}
}

func TestClassifyIdleAfterWaitingInputReplacedByIdlePrompt(t *testing.T) {
	e := New(DefaultRuleset())
	got := e.Classify(Input{
		Capture:         "$ ",
		PreviousCapture: "$ ",
		PreviousStatus:  model.StatusWaitingInput,
	})
	if got != model.StatusIdle {
		t.Errorf("Classify() = %v, want idle", got)
	}
}

func TestClassifyWorkingOnNewAppendedLine(t *testing.T) {
	e := New(DefaultRuleset())
	got := e.Classify(Input{
		Capture:           "$ \nnew output line",
		PreviousCapture:   "$ ",
		PreviousStatus:    model.StatusIdle,
		LastChangeElapsed: 0,
	})
	if got != model.StatusWorking {
		t.Errorf("Classify() = %v, want working", got)
	}
}

func TestClassifyRetainsPriorStatusWhenUnchangedWithoutIdleMarker(t *testing.T) {
	e := New(DefaultRuleset())
	got := e.Classify(Input{
		Capture:         "streaming tokens without a prompt",
		PreviousCapture: "streaming tokens without a prompt",
		PreviousStatus:  model.StatusWorking,
	})
	if got != model.StatusWorking {
		t.Errorf("Classify() = %v, want working (retained)", got)
	}
}

func TestClassifyErrorMarkers(t *testing.T) {
	e := New(DefaultRuleset())
	got := e.Classify(Input{
		Capture:        "panic: runtime error: invalid memory address",
		PreviousStatus: model.StatusWorking,
	})
	if got != model.StatusError {
		t.Errorf("Classify() = %v, want error", got)
	}
}

func TestClassifyTrailingBlankLinesDoNotCountAsChange(t *testing.T) {
	e := New(DefaultRuleset())
	got := e.Classify(Input{
		Capture:         "$ \n\n\n",
		PreviousCapture: "$ ",
		PreviousStatus:  model.StatusIdle,
	})
	if got != model.StatusIdle {
		t.Errorf("Classify() = %v, want idle (trailing blanks normalized away)", got)
	}
}

func TestClassifyWorkingPastActivityWindowFallsThrough(t *testing.T) {
	e := New(DefaultRuleset())
	got := e.Classify(Input{
		Capture:           "new content",
		PreviousCapture:   "old content",
		PreviousStatus:    model.StatusIdle,
		LastChangeElapsed: ActivityWindow + time.Second,
	})
	if got != model.StatusIdle {
		t.Errorf("Classify() = %v, want idle (change outside activity window retains prior)", got)
	}
}

func TestExtractResponseByMarkers(t *testing.T) {
	capture := "> do the thing\n\n● Here is the result of doing the thing.\nIt has two lines.\n\n> "
	got := ExtractResponse(capture)
	want := "● Here is the result of doing the thing.\nIt has two lines."
	if got != want {
		t.Errorf("ExtractResponse() = %q, want %q", got, want)
	}
}

func TestExtractResponseFallsBackToLargestBlock(t *testing.T) {
	capture := "\n\nsome\nunmarked\noutput\n\n\nshort\n"
	got := ExtractResponse(capture)
	if got != "some\nunmarked\noutput" {
		t.Errorf("ExtractResponse() = %q", got)
	}
}
