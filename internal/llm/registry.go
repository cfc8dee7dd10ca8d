package llm

// payloadShape selects the request/response schema a cloud provider speaks.
type payloadShape string

const (
	shapeOpenAIChat        payloadShape = "openai-chat"
	shapeAnthropicMessages payloadShape = "anthropic-messages"
)

// endpoint describes one cloud chat-completion backend. Adding a provider is
// a new registry entry as long as it speaks one of the two known shapes.
type endpoint struct {
	URL        string
	Model      string
	AuthHeader string
	AuthPrefix string
	Shape      payloadShape
}

var registry = map[string]endpoint{
	"openai": {
		URL:        "https://api.openai.com/v1/chat/completions",
		Model:      "gpt-4o-mini",
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
		Shape:      shapeOpenAIChat,
	},
	"gemini": {
		URL:        "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
		Model:      "gemini-1.5-flash",
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
		Shape:      shapeOpenAIChat,
	},
	"deepseek": {
		URL:        "https://api.deepseek.com/chat/completions",
		Model:      "deepseek-chat",
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
		Shape:      shapeOpenAIChat,
	},
	"groq": {
		URL:        "https://api.groq.com/openai/v1/chat/completions",
		Model:      "llama-3.3-70b-versatile",
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
		Shape:      shapeOpenAIChat,
	},
	"claude": {
		URL:        "https://api.anthropic.com/v1/messages",
		Model:      "claude-3-5-sonnet-20241022",
		AuthHeader: "x-api-key",
		AuthPrefix: "",
		Shape:      shapeAnthropicMessages,
	},
}

// anthropicVersion is the required version header for the Anthropic API.
const anthropicVersion = "2023-06-01"
