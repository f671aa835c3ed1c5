package embedder

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxLength is the sequence length used when none is configured.
	DefaultMaxLength = 128

	// maxWordRunes bounds wordpiece work; longer words map straight to [UNK].
	maxWordRunes = 200

	continuationPrefix = "##"
)

// Fragment patterns match runs of characters that are neither word
// characters nor hyphens. Matches are kept as their own fragments so
// punctuation is separated from words without being dropped. By default
// word characters are ASCII letters, digits and underscore; unicode mode
// widens them to every letter, mark and number.
var (
	asciiFragments   = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	unicodeFragments = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_-]+`)
)

// TokenizedInput is a single-segment model input. All three slices have the
// same length, and AttentionMask[i] is 0 exactly where InputIDs[i] is the
// pad ID.
type TokenizedInput struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Len returns the sequence length.
func (t TokenizedInput) Len() int {
	return len(t.InputIDs)
}

// Tokenizer performs WordPiece tokenization against a fixed vocabulary.
// It is immutable after construction and safe for concurrent use.
type Tokenizer struct {
	vocab     *vocab
	unicode   bool
	fragments *regexp.Regexp
}

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithUnicodeWords composes input to NFC and treats every Unicode letter,
// mark and number as a word character, so "café" stays one word instead of
// splitting into "caf" and "é".
func WithUnicodeWords(enabled bool) TokenizerOption {
	return func(t *Tokenizer) {
		t.unicode = enabled
	}
}

// NewTokenizer creates a tokenizer from a vocab.txt file. Failures wrap
// ErrVocabularyLoad.
func NewTokenizer(vocabPath string, opts ...TokenizerOption) (*Tokenizer, error) {
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	t := &Tokenizer{vocab: v}
	for _, opt := range opts {
		opt(t)
	}
	t.fragments = asciiFragments
	if t.unicode {
		t.fragments = unicodeFragments
	}
	return t, nil
}

// VocabSize returns the number of vocabulary entries.
func (t *Tokenizer) VocabSize() int {
	return t.vocab.size()
}

// PadID returns the [PAD] token ID.
func (t *Tokenizer) PadID() int64 { return t.vocab.padID }

// UnkID returns the [UNK] token ID.
func (t *Tokenizer) UnkID() int64 { return t.vocab.unkID }

// ClsID returns the [CLS] token ID.
func (t *Tokenizer) ClsID() int64 { return t.vocab.clsID }

// SepID returns the [SEP] token ID.
func (t *Tokenizer) SepID() int64 { return t.vocab.sepID }

// Tokenize converts text into a [CLS] ids... [SEP] [PAD]... sequence of
// exactly maxLength entries. Ids beyond maxLength-2 are truncated.
// maxLength values below 2 are raised to 2.
func (t *Tokenizer) Tokenize(text string, maxLength int) TokenizedInput {
	if maxLength < 2 {
		maxLength = 2
	}
	ids := t.ids(text)
	if len(ids) > maxLength-2 {
		ids = ids[:maxLength-2]
	}
	return t.assemble(ids, maxLength)
}

// TokenizeWindows splits the full id sequence of text into windows of at most
// maxLength-2 ids, consecutive windows sharing overlap ids, and assembles each
// window like Tokenize. Text that fits in one window yields exactly one input.
func (t *Tokenizer) TokenizeWindows(text string, maxLength, overlap int) []TokenizedInput {
	if maxLength < 2 {
		maxLength = 2
	}
	ids := t.ids(text)
	window := maxLength - 2
	if len(ids) <= window || window == 0 {
		return []TokenizedInput{t.Tokenize(text, maxLength)}
	}

	stride := window - overlap
	if overlap < 0 || stride < 1 {
		stride = window
	}

	var out []TokenizedInput
	for start := 0; start < len(ids); start += stride {
		end := min(start+window, len(ids))
		out = append(out, t.assemble(ids[start:end], maxLength))
		if end == len(ids) {
			break
		}
	}
	return out
}

// Pieces returns the wordpiece tokens for text without special tokens or
// truncation.
func (t *Tokenizer) Pieces(text string) []string {
	var pieces []string
	for _, word := range t.splitWords(t.normalize(text)) {
		pieces = append(pieces, t.wordpiece(word)...)
	}
	return pieces
}

// ids maps every piece of text to its vocabulary ID.
func (t *Tokenizer) ids(text string) []int64 {
	pieces := t.Pieces(text)
	ids := make([]int64, len(pieces))
	for i, p := range pieces {
		ids[i] = t.vocab.lookup(p)
	}
	return ids
}

// assemble wraps ids in [CLS]/[SEP] and right-pads to maxLength. The caller
// guarantees len(ids) <= maxLength-2.
func (t *Tokenizer) assemble(ids []int64, maxLength int) TokenizedInput {
	in := TokenizedInput{
		InputIDs:      make([]int64, 0, maxLength),
		AttentionMask: make([]int64, maxLength),
		TokenTypeIDs:  make([]int64, maxLength), // single segment: all zeros
	}

	in.InputIDs = append(in.InputIDs, t.vocab.clsID)
	in.InputIDs = append(in.InputIDs, ids...)
	in.InputIDs = append(in.InputIDs, t.vocab.sepID)
	for len(in.InputIDs) < maxLength {
		in.InputIDs = append(in.InputIDs, t.vocab.padID)
	}

	for i, id := range in.InputIDs {
		if id != t.vocab.padID {
			in.AttentionMask[i] = 1
		}
	}
	return in
}

// wordpiece decomposes a single word. A word present verbatim in the
// vocabulary is one token. Otherwise the longest matching prefix is taken
// repeatedly, continuation pieces carrying the ## marker. If any remainder
// has no matching prefix the whole word becomes a single [UNK]; pieces found
// before the failure are discarded.
func (t *Tokenizer) wordpiece(word string) []string {
	if t.vocab.contains(word) {
		return []string{word}
	}

	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []string{unkToken}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		match := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = continuationPrefix + sub
			}
			if t.vocab.contains(sub) {
				match = sub
				break
			}
			end--
		}
		if match == "" {
			return []string{unkToken}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// normalize trims and lowercases, composing to NFC first in unicode mode.
func (t *Tokenizer) normalize(text string) string {
	if t.unicode {
		text = norm.NFC.String(text)
	}
	return strings.ToLower(strings.TrimSpace(text))
}

// splitWords splits on whitespace, then separates runs of word characters
// and hyphens from runs of everything else. Empty fragments are dropped.
func (t *Tokenizer) splitWords(text string) []string {
	var words []string
	for _, chunk := range strings.Fields(text) {
		last := 0
		for _, loc := range t.fragments.FindAllStringIndex(chunk, -1) {
			if loc[0] > last {
				words = append(words, chunk[last:loc[0]])
			}
			words = append(words, chunk[loc[0]:loc[1]])
			last = loc[1]
		}
		if last < len(chunk) {
			words = append(words, chunk[last:])
		}
	}
	return words
}
