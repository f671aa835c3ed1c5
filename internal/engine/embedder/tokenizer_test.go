package embedder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nonPad returns the leading non-padding portion of ids.
func nonPad(ids []int64, pad int64) []int64 {
	for i, id := range ids {
		if id == pad {
			return ids[:i]
		}
	}
	return ids
}

func TestTokenize(t *testing.T) {
	tok := fixtureTokenizer(t)

	tests := []struct {
		name string
		text string
		ids  []int64 // expected input_ids (non-padding portion)
	}{
		{"empty string", "", []int64{4, 5}},
		{"whitespace only", "  \t\n ", []int64{4, 5}},
		{"lowercased and trimmed", "  Hello WORLD ", []int64{4, 0, 3, 5}},
		{"punctuation split but kept", "hello, world.", []int64{4, 0, 11, 3, 12, 5}},
		{"unknown punctuation", "world!", []int64{4, 3, 1, 5}},
		{"subword pieces", "unbelievable", []int64{4, 6, 7, 8, 5}},
		{"continuation suffix", "plays", []int64{4, 9, 10, 5}},
		{"whole word unknown", "zzzzqqqqunmatchable", []int64{4, 1, 5}},
		{"partial pieces discarded", "unzzz", []int64{4, 1, 5}},
		{"non-ascii letters split off", "cafe\u0301", []int64{4, 1, 1, 5}},
		{"overlong word", strings.Repeat("un", 101), []int64{4, 1, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tok.Tokenize(tt.text, 16)
			assert.Equal(t, tt.ids, nonPad(in.InputIDs, tok.PadID()))
		})
	}
}

func TestTokenizeLengthInvariant(t *testing.T) {
	tok := fixtureTokenizer(t)
	texts := []string{"", "hello", "hello world the cat plays", strings.Repeat("machine learning ", 100)}

	for _, text := range texts {
		for _, maxLen := range []int{0, 1, 2, 3, 8, 128} {
			in := tok.Tokenize(text, maxLen)
			want := max(maxLen, 2)
			require.Len(t, in.InputIDs, want)
			require.Len(t, in.AttentionMask, want)
			require.Len(t, in.TokenTypeIDs, want)

			for i, id := range in.InputIDs {
				assert.Equal(t, id != tok.PadID(), in.AttentionMask[i] == 1, "mask mismatch at %d", i)
				assert.Zero(t, in.TokenTypeIDs[i])
			}
		}
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	tok := fixtureTokenizer(t)
	text := "The cat plays; unbelievable machine-learning."
	assert.Equal(t, tok.Tokenize(text, 32), tok.Tokenize(text, 32))
}

func TestTokenizeEmptyLayout(t *testing.T) {
	tok := fixtureTokenizer(t)
	in := tok.Tokenize("", 6)
	assert.Equal(t, []int64{4, 5, 2, 2, 2, 2}, in.InputIDs)
	assert.Equal(t, []int64{1, 1, 0, 0, 0, 0}, in.AttentionMask)
}

func TestTokenizeTruncation(t *testing.T) {
	tok := fixtureTokenizer(t)

	in := tok.Tokenize("hello world the cat hello world", 5)
	assert.Equal(t, []int64{4, 0, 3, 14, 5}, in.InputIDs)
	assert.Equal(t, []int64{1, 1, 1, 1, 1}, in.AttentionMask)

	in = tok.Tokenize("hello world", 2)
	assert.Equal(t, []int64{4, 5}, in.InputIDs)
}

func TestTokenizeWindows(t *testing.T) {
	tok := fixtureTokenizer(t)

	// Window of 2 ids, stride 1.
	wins := tok.TokenizeWindows("hello world the cat", 4, 1)
	require.Len(t, wins, 3)
	assert.Equal(t, []int64{4, 0, 3, 5}, wins[0].InputIDs)
	assert.Equal(t, []int64{4, 3, 14, 5}, wins[1].InputIDs)
	assert.Equal(t, []int64{4, 14, 13, 5}, wins[2].InputIDs)

	// Short text yields exactly the truncating form.
	wins = tok.TokenizeWindows("hello", 8, 2)
	require.Len(t, wins, 1)
	assert.Equal(t, tok.Tokenize("hello", 8), wins[0])

	// Overlap too large degrades to non-overlapping windows.
	wins = tok.TokenizeWindows("hello world the cat", 4, 5)
	require.Len(t, wins, 2)
	assert.Equal(t, []int64{4, 14, 13, 5}, wins[1].InputIDs)

	// The final window is padded.
	wins = tok.TokenizeWindows("hello world the", 4, 0)
	require.Len(t, wins, 2)
	assert.Equal(t, []int64{4, 14, 5, 2}, wins[1].InputIDs)
	assert.Equal(t, []int64{1, 1, 1, 0}, wins[1].AttentionMask)
}

func TestSplitWords(t *testing.T) {
	tok := fixtureTokenizer(t)
	assert.Equal(t, []string{"state-of-the-art", "(", "v2", ")", "!!"}, tok.splitWords("state-of-the-art (v2) !!"))
	assert.Equal(t, []string{"na", "ï", "ve"}, tok.splitWords("naïve"))
	assert.Nil(t, tok.splitWords("   "))
}

func TestUnicodeWords(t *testing.T) {
	tok, err := NewTokenizer(writeVocab(t, fixtureTokens), WithUnicodeWords(true))
	require.NoError(t, err)

	assert.Equal(t, []string{"naïve", "!"}, tok.splitWords("naïve!"))
	assert.Equal(t, []int64{4, 17, 5}, nonPad(tok.Tokenize("Café", 8).InputIDs, tok.PadID()))
	// Decomposed e + combining acute composes to the vocabulary entry.
	assert.Equal(t, []int64{4, 17, 5}, nonPad(tok.Tokenize("cafe\u0301", 8).InputIDs, tok.PadID()))
	assert.Equal(t, []int64{4, 0, 11, 3, 5}, nonPad(tok.Tokenize("hello, world", 8).InputIDs, tok.PadID()))
}

func TestPieces(t *testing.T) {
	tok := fixtureTokenizer(t)
	assert.Equal(t, []string{"un", "##believ", "##able", ",", "[UNK]"}, tok.Pieces("Unbelievable, qq"))
}
