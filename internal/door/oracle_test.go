package door

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/ansi"
)

// scriptedProvider returns a fixed answer or error.
type scriptedProvider struct {
	answer string
	err    error
}

func (p *scriptedProvider) GenerateCompletion(_ context.Context, _ string, _ ai.Options) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.answer, nil
}

func (p *scriptedProvider) GenerateStructured(_ context.Context, _ string, _ string, _ ai.Options) (json.RawMessage, error) {
	return nil, p.err
}

func (p *scriptedProvider) Name() string { return "scripted" }

func oracleWith(p ai.Provider) *Oracle {
	cfg := ai.ServiceConfig{RetryAttempts: 0, EnableFallbacks: true}
	return NewOracle(ai.NewService(p, cfg, testLogger()), testLogger())
}

func newOracleSession() *Session {
	return &Session{State: make(map[string]any)}
}

func checkOmen(t *testing.T, out string) {
	t.Helper()
	if w := ansi.Width(out); w > OracleMaxCells {
		t.Errorf("answer is %d cells, cap is %d: %q", w, OracleMaxCells, out)
	}
	if !containsAny(out, mysticGlyphs) {
		t.Errorf("answer missing mystic glyph: %q", out)
	}
	if !strings.Contains(out, "...") {
		t.Errorf("answer missing pause marker: %q", out)
	}
}

func TestOracleAnswerInvariants(t *testing.T) {
	cases := []struct {
		name   string
		answer string
	}{
		{"plain", "The path ahead is uncertain"},
		{"already mystical", "✨ The stars align... fortune smiles upon you"},
		{"overlong", strings.Repeat("Beware the ides of every month. ", 20)},
		{"overlong with late glyph", strings.Repeat("x", 300) + " 🌙"},
		{"wide runes", strings.Repeat("🔮", 120)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := oracleWith(&scriptedProvider{answer: tc.answer})
			s := newOracleSession()

			turn, err := o.HandleInput(context.Background(), s, "what awaits me?")
			if err != nil {
				t.Fatalf("turn failed: %v", err)
			}
			if turn.Exit {
				t.Fatal("question should not exit the session")
			}
			checkOmen(t, turn.Output)
		})
	}
}

func TestOracleFallbackOnAIFailure(t *testing.T) {
	o := oracleWith(&scriptedProvider{err: ai.NewError(ai.KindNetwork, "down", nil)})
	s := newOracleSession()

	turn, err := o.HandleInput(context.Background(), s, "will the network recover?")
	if err != nil {
		t.Fatalf("fallback should absorb the failure: %v", err)
	}
	checkOmen(t, turn.Output)
}

func TestOracleSessionFlow(t *testing.T) {
	o := oracleWith(&scriptedProvider{answer: "Fortune favors you"})
	s := newOracleSession()
	ctx := context.Background()

	intro, err := o.Introduce(ctx, s)
	if err != nil {
		t.Fatalf("introduce: %v", err)
	}
	if !strings.Contains(intro, "🔮") || !strings.Contains(intro, "quit") {
		t.Fatalf("incomplete introduction: %q", intro)
	}

	if _, err := o.HandleInput(ctx, s, "first?"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if _, err := o.HandleInput(ctx, s, "second?"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if asked, _ := s.State["questionsAsked"].(int); asked != 2 {
		t.Fatalf("question count not tracked: %+v", s.State)
	}
	if s.State["lastQuestion"] != "second?" {
		t.Fatalf("last question not tracked: %+v", s.State)
	}

	// Empty input nudges without consuming a question.
	turn, err := o.HandleInput(ctx, s, "   ")
	if err != nil || turn.Exit {
		t.Fatalf("empty input: %v exit=%v", err, turn.Exit)
	}
	if asked, _ := s.State["questionsAsked"].(int); asked != 2 {
		t.Fatal("empty input consumed a question")
	}

	for _, cmd := range []string{"quit", "EXIT"} {
		turn, err := o.HandleInput(ctx, s, cmd)
		if err != nil {
			t.Fatalf("%s: %v", cmd, err)
		}
		if !turn.Exit {
			t.Fatalf("%s should exit the session", cmd)
		}
	}
}

func TestDivineProperty(t *testing.T) {
	// Divine must satisfy all three invariants for arbitrary input.
	inputs := []string{
		"",
		"x",
		"...",
		"🔮",
		strings.Repeat("omen ", 100),
		"\x1b[31mred omen\x1b[0m " + strings.Repeat("doom ", 60),
	}
	for _, in := range inputs {
		checkOmen(t, Divine(in))
	}
}
