package llm

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ppiankov/riskpilot/internal/model"
)

func scored(id string, score float64, text string) model.ScoredSegment {
	return model.ScoredSegment{Segment: model.Segment{ID: id, SourceInputID: "in-" + id, Text: text}, Score: score}
}

func TestInstruction(t *testing.T) {
	one := Instruction([]model.SignalType{model.SignalCostRisk}, model.KindCostSummary, false)
	for _, want := range []string{"cost_risk", "NORMAL, ANOMALOUS", "budget variances", "SIGNAL_VALUE:", "cost_summary"} {
		if !strings.Contains(one, want) {
			t.Errorf("single-type instruction missing %q:\n%s", want, one)
		}
	}
	if strings.Contains(one, "SIGNAL_TYPE:") {
		t.Errorf("single-type instruction should not ask for SIGNAL_TYPE")
	}

	multi := Instruction(model.AllSignalTypes, "", false)
	if !strings.Contains(multi, "SIGNAL_TYPE:") || !strings.Contains(multi, "---") {
		t.Errorf("multi-type instruction should ask for typed blocks:\n%s", multi)
	}

	js := Instruction(nil, "", true)
	if !strings.Contains(js, `"signals"`) || !strings.Contains(js, "delivery_risk") {
		t.Errorf("JSON instruction should describe the envelope:\n%s", js)
	}
}

func TestQueryFor(t *testing.T) {
	if !strings.Contains(QueryFor(model.SignalCostRisk), "overrun") {
		t.Errorf("unexpected cost query %q", QueryFor(model.SignalCostRisk))
	}
	if QueryFor("custom") != "custom" {
		t.Errorf("unknown types query by name")
	}
}

func TestBuildPromptContext_FitsWithoutTruncation(t *testing.T) {
	p, err := BuildPromptContext("INSTR", []string{"a", "b"}, []model.ScoredSegment{scored("1", 0.9, "ctx")}, 1000)
	if err != nil {
		t.Fatalf("BuildPromptContext: %v", err)
	}
	if p.TruncationApplied {
		t.Error("no truncation expected")
	}
	out := p.Render()
	for _, want := range []string{"INSTR", "RETRIEVED CONTEXT:", "[Source: in-1, relevance 0.90]", "ctx", "INPUT:\na\n\nb"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestBuildPromptContext_DropsLowestRelevanceFirst(t *testing.T) {
	instr := strings.Repeat("i", 100)
	retrieved := []model.ScoredSegment{
		scored("top", 0.9, strings.Repeat("t", 50)),
		scored("mid", 0.6, strings.Repeat("m", 50)),
		scored("low", 0.3, strings.Repeat("l", 50)),
	}
	input := []string{strings.Repeat("x", 40)}

	full, _ := BuildPromptContext(instr, input, retrieved, 0)
	budget := utf8.RuneCountInString(full.Render()) - 60

	p, err := BuildPromptContext(instr, input, retrieved, budget)
	if err != nil {
		t.Fatalf("BuildPromptContext: %v", err)
	}
	if !p.TruncationApplied {
		t.Error("expected truncation")
	}
	if len(p.RetrievedSegments) != 2 || p.RetrievedSegments[1].ID != "mid" {
		t.Errorf("expected only the lowest segment dropped, got %+v", p.RetrievedSegments)
	}
	if len(p.NormalizedSegments) != 1 || p.NormalizedSegments[0] != input[0] {
		t.Errorf("input must be untouched while retrieved segments remain: %+v", p.NormalizedSegments)
	}
	if n := utf8.RuneCountInString(p.Render()); n > budget {
		t.Errorf("render %d runes over budget %d", n, budget)
	}
}

func TestBuildPromptContext_KeepsInstructionAndTopSegment(t *testing.T) {
	instr := strings.Repeat("i", 200)
	topText := strings.Repeat("t", 100)
	retrieved := []model.ScoredSegment{
		scored("top", 0.9, topText),
		scored("low", 0.2, strings.Repeat("l", 100)),
	}
	input := []string{strings.Repeat("x", 100), strings.Repeat("y", 100)}

	// instruction + top segment + INPUT header is 363 runes
	for _, budget := range []int{500, 450, 380, 364} {
		p, err := BuildPromptContext(instr, input, retrieved, budget)
		if err != nil {
			t.Fatalf("budget %d: %v", budget, err)
		}
		out := p.Render()
		if n := utf8.RuneCountInString(out); n > budget {
			t.Errorf("budget %d: render is %d runes", budget, n)
		}
		if !strings.HasPrefix(out, instr) {
			t.Errorf("budget %d: instruction was cut", budget)
		}
		if len(p.RetrievedSegments) == 0 || p.RetrievedSegments[0].ID != "top" {
			t.Fatalf("budget %d: top retrieved segment was dropped", budget)
		}
		if p.RetrievedSegments[0].Text != topText {
			t.Errorf("budget %d: top retrieved segment was shortened to %d runes", budget, len(p.RetrievedSegments[0].Text))
		}
		if len(p.NormalizedSegments) == 0 || p.NormalizedSegments[0] == "" {
			t.Errorf("budget %d: input was removed", budget)
		}
		if !strings.HasPrefix(p.NormalizedSegments[0], "x") {
			t.Errorf("budget %d: input should keep its head, got %q", budget, p.NormalizedSegments[0])
		}
		if !strings.Contains(out, "INPUT:\n") {
			t.Errorf("budget %d: render has no INPUT section", budget)
		}
	}
}

func TestBuildPromptContext_NeverEmptiesInput(t *testing.T) {
	top := scored("top", 0.9, strings.Repeat("t", 340))
	cases := []struct {
		name   string
		input  []string
		budget int
	}{
		{"short input behind a long top segment", []string{"Milestone 3 is delayed"}, 150},
		{"long input behind a long top segment", []string{strings.Repeat("m", 360)}, 260},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := BuildPromptContext("Assess delivery risk.", tc.input, []model.ScoredSegment{top}, tc.budget)
			if !errors.Is(err, ErrPromptBudget) {
				t.Fatalf("Expected ErrPromptBudget, got %v", err)
			}
			if len(p.RetrievedSegments) != 1 || p.RetrievedSegments[0].Text != top.Text {
				t.Errorf("top retrieved segment must stay intact")
			}
		})
	}
}

func TestBuildPromptContext_TrimsInputTail(t *testing.T) {
	instr := "Assess delivery risk."
	input := []string{"Milestone 3 is delayed by six weeks.", strings.Repeat("z", 200)}

	full, _ := BuildPromptContext(instr, input, nil, 0)
	budget := utf8.RuneCountInString(full.Render()) - 220

	p, err := BuildPromptContext(instr, input, nil, budget)
	if err != nil {
		t.Fatalf("BuildPromptContext: %v", err)
	}
	if len(p.NormalizedSegments) != 1 || !strings.HasPrefix(input[0], p.NormalizedSegments[0]) || p.NormalizedSegments[0] == "" {
		t.Errorf("Expected a non-empty head of the first segment, got %q", p.NormalizedSegments)
	}
	if !p.TruncationApplied {
		t.Error("expected truncation")
	}
}

func TestBuildPromptContext_InstructionOverBudget(t *testing.T) {
	_, err := BuildPromptContext(strings.Repeat("i", 300), []string{"x"}, nil, 256)
	if !errors.Is(err, ErrPromptBudget) {
		t.Fatalf("Expected ErrPromptBudget, got %v", err)
	}
}
