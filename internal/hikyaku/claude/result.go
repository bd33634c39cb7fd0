package claude

// ResultKind classifies how an assistant reply was obtained from the CLI's
// output, so callers can tell a clean structured reply from a degraded one
// without sniffing the text.
type ResultKind int

const (
	// ResultStructured: stdout was the expected JSON object and carried a
	// non-empty result field.
	ResultStructured ResultKind = iota

	// ResultRawFallback: stdout was not valid JSON; Text holds the raw
	// trimmed output.
	ResultRawFallback

	// ResultEmpty: the process succeeded but produced no usable text. Text
	// is empty; the transport layer decides how to present that.
	ResultEmpty
)

// String returns the kind's log-friendly name.
func (k ResultKind) String() string {
	switch k {
	case ResultStructured:
		return "structured"
	case ResultRawFallback:
		return "raw_fallback"
	case ResultEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// InvocationResult is one assistant reply.
type InvocationResult struct {
	Kind ResultKind

	// Text is the reply. Empty when Kind is ResultEmpty.
	Text string

	// SessionID is the CLI's own session identifier, when the structured
	// output carried one. Informational; Hikyaku never passes it back.
	SessionID string

	// Model is the model name, when the structured output carried one.
	Model string
}
