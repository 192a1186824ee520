package conversation

// Source documents which code path produced a reply. It drives no
// behavior beyond metrics labels but makes the pipeline testable.
type Source string

const (
	SourceLLM           Source = "llm"
	SourceFallbackEcho  Source = "fallback_echo"
	SourceFallbackError Source = "fallback_error"
	SourceFallbackParse Source = "fallback_parse"
	SourceSafeRefusal   Source = "safe_refusal"
)

// Reply is the generator's result for one inbound message.
type Reply struct {
	Text   string
	Source Source
}

const (
	// parseFallbackReply covers a successful backend response with no
	// extractable text. The outbound channel requires non-empty content.
	parseFallbackReply = "Я отвлёкся 🪲 Повторите, пожалуйста?"
	// errorFallbackReply covers transport, status and timeout failures.
	errorFallbackReply = "Бубашвабе временно недоступен. Попробуйте написать чуть позже."
)
