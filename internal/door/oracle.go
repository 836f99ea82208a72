package door

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/retrobbs/retrobbs/internal/ai"
	"github.com/retrobbs/retrobbs/internal/ansi"
)

// OracleMaxCells caps each Oracle answer's visual width.
const OracleMaxCells = 150

// mysticGlyphs are the marks every Oracle answer must carry at least
// one of.
var mysticGlyphs = []string{"🔮", "✨", "🌙", "⭐"}

const oracleSystemPrompt = "You are The Oracle, a mystical fortune teller on a retro BBS. " +
	"Answer the seeker's question in one or two short, cryptic sentences. " +
	"Speak in omens and portents. Use pauses (...) for dramatic effect."

const oracleFallback = "🔮 The mists are thick tonight... the spirits withhold their counsel. Ask again, seeker..."

// Oracle is a door whose turns ask the AI for a mystical answer to
// the seeker's question. Every answer fits in OracleMaxCells, carries
// a mystic glyph, and pauses at least once.
type Oracle struct {
	ai     *ai.Service
	logger *logrus.Logger
}

// NewOracle wires the Oracle to an AI service.
func NewOracle(svc *ai.Service, logger *logrus.Logger) *Oracle {
	return &Oracle{ai: svc, logger: logger}
}

func (o *Oracle) ID() string   { return "oracle" }
func (o *Oracle) Name() string { return "The Oracle" }

// Introduce seeds fresh session state and returns the greeting.
func (o *Oracle) Introduce(_ context.Context, s *Session) (string, error) {
	s.State["questionsAsked"] = 0
	return ansi.Colorize("🔮 The Oracle turns her gaze upon you...", ansi.Magenta) + "\n" +
		"Ask your question, seeker, or type " +
		ansi.Colorize("quit", ansi.Yellow) + " to leave.", nil
}

// HandleInput runs one divination turn. "quit" and "exit" end the
// session.
func (o *Oracle) HandleInput(ctx context.Context, s *Session, input string) (Turn, error) {
	question := strings.TrimSpace(input)
	switch strings.ToLower(question) {
	case "quit", "exit":
		return Turn{
			Output: ansi.Colorize("✨ The Oracle fades into the mist... farewell, seeker.", ansi.Magenta),
			Exit:   true,
		}, nil
	}
	if question == "" {
		return Turn{Output: "🔮 The Oracle waits... speak your question."}, nil
	}

	answer, err := o.ai.GenerateCompletion(ctx, question, ai.Options{
		System:    oracleSystemPrompt,
		MaxTokens: 120,
	}, oracleFallback)
	if err != nil {
		return Turn{}, err
	}

	s.State["questionsAsked"] = stateInt(s.State["questionsAsked"]) + 1
	s.State["lastQuestion"] = question

	return Turn{Output: Divine(answer)}, nil
}

// Divine normalizes a raw answer into Oracle form: a mystic glyph, at
// least one pause, and at most OracleMaxCells cells.
func Divine(answer string) string {
	answer = strings.TrimSpace(answer)
	if !containsAny(answer, mysticGlyphs) {
		answer = "🔮 " + answer
	}
	if !strings.Contains(answer, "...") {
		answer += "..."
	}
	out := ansi.Truncate(answer, OracleMaxCells, "...")
	// Truncation may have cut away the only glyph.
	if !containsAny(out, mysticGlyphs) {
		out = ansi.Truncate("🔮 "+out, OracleMaxCells, "...")
	}
	return out
}

// stateInt reads a numeric state value. JSON round-trips through the
// session repository decode numbers as float64.
func stateInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
