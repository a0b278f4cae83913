package llms

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures one AnthropicProvider instance.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

func (c *AnthropicConfig) setDefaults() {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}

// AnthropicProvider implements Provider against the Anthropic Messages
// API's streaming endpoint. Grounded on teradata-labs-loom's
// pkg/llm/bedrock/client_sdk.go ChatStream (the one pack example that
// drives anthropic-sdk-go's NewStreaming directly rather than a
// hand-rolled HTTP client, unlike the teacher's own pkg/llms/anthropic.go
// which predates the SDK and parses SSE by hand).
type AnthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicProvider builds a provider from cfg, applying the
// teacher's Config{...}.setDefaults() idiom (pkg/config's pointer-bool
// pattern, narrowed here to plain zero-value defaulting since every
// field is scalar).
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	cfg.setDefaults()
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), cfg: cfg}
}

// ModelName implements Provider.
func (p *AnthropicProvider) ModelName() string { return p.cfg.Model }

// StreamCompletion implements Provider. Every message of Role system is
// joined into the API's top-level system prompt (the Anthropic Messages
// API has no system-role message slot, and allows only one system
// string); every remaining message is sent as a user or assistant turn.
func (p *AnthropicProvider) StreamCompletion(ctx context.Context, messages []Message) (<-chan Chunk, error) {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.cfg.Model),
		Messages:    turns,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: anthropic.Float(p.cfg.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	out := make(chan Chunk)
	stream := p.client.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(out)
		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				continue
			}
			select {
			case out <- Chunk{Text: event.Delta.Text}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// splitSystem joins every system-role message into one string (wire
// order preserved) and converts the rest into Anthropic message params,
// tagging prompt-cache breakpoints on messages the compactor marked
// Cached (spec §4.4: "last message in each stream is marked cached").
func splitSystem(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(cachedBlock(m)))
		default:
			turns = append(turns, anthropic.NewUserMessage(cachedBlock(m)))
		}
	}
	return system, turns
}

func cachedBlock(m Message) anthropic.ContentBlockParamUnion {
	block := anthropic.NewTextBlock(m.Content)
	if m.Cached {
		block.OfText.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	return block
}

var _ Provider = (*AnthropicProvider)(nil)
