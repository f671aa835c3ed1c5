package embedder

import "errors"

var (
	// ErrVocabularyLoad is returned when the vocabulary resource is missing
	// or malformed. It is fatal at tokenizer construction.
	ErrVocabularyLoad = errors.New("vocabulary load failed")

	// ErrModelUnavailable is returned once, at construction, when the model
	// resource cannot be loaded. The model stays disabled afterwards.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrServiceUnavailable is returned by Embed on a disabled or closed model.
	ErrServiceUnavailable = errors.New("classification service unavailable")
)
