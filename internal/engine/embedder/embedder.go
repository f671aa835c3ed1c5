package embedder

import "context"

// Embedder produces unit-length vectors from tokenized input.
type Embedder interface {
	Embed(ctx context.Context, in TokenizedInput) ([]float32, error)
	Available() bool
}

// Encoder couples a Tokenizer with an Embedder for callers that start from
// raw text.
type Encoder struct {
	tok    *Tokenizer
	model  Embedder
	maxLen int
	name   string
}

// NewEncoder returns an Encoder truncating input to maxLen tokens. name
// identifies the underlying model in cache keys.
func NewEncoder(tok *Tokenizer, model Embedder, maxLen int, name string) *Encoder {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	return &Encoder{tok: tok, model: model, maxLen: maxLen, name: name}
}

// EmbedText tokenizes and embeds text.
func (e *Encoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if !e.model.Available() {
		return nil, ErrServiceUnavailable
	}
	return e.model.Embed(ctx, e.tok.Tokenize(text, e.maxLen))
}

// Available reports whether the underlying model can embed.
func (e *Encoder) Available() bool { return e.model.Available() }

// ModelName identifies the underlying model.
func (e *Encoder) ModelName() string { return e.name }
