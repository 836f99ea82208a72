package ai

// FallbackContext names a canned-response situation.
type FallbackContext string

const (
	FallbackWelcome  FallbackContext = "welcome"
	FallbackGreeting FallbackContext = "greeting"
	FallbackHelp     FallbackContext = "help"
	FallbackError    FallbackContext = "error"
)

// canned responses carry their own ANSI formatting so they drop
// straight into a terminal session when the AI is unreachable.
var fallbacks = map[FallbackContext]string{
	FallbackWelcome:  "\x1b[36mWelcome to the board!\x1b[0m The SysOp's AI is napping, but everything else works.",
	FallbackGreeting: "\x1b[32mGood to see you again.\x1b[0m Drop a note in the message bases while you're here.",
	FallbackHelp:     "\x1b[33mLost?\x1b[0m Type M for message bases, D for doors, G to log off.",
	FallbackError:    "\x1b[31mThe AI SysOp is unavailable right now.\x1b[0m Please try again in a moment.",
}

// Fallback returns the canned response for a context. Unknown contexts
// get the generic error response.
func Fallback(c FallbackContext) string {
	if s, ok := fallbacks[c]; ok {
		return s
	}
	return fallbacks[FallbackError]
}
