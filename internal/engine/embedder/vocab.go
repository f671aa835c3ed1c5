package embedder

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Reserved vocabulary entries.
const (
	padToken = "[PAD]"
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// vocab is a WordPiece vocabulary. A token's ID is its 0-indexed line number
// in vocab.txt; special token IDs are found by lookup, not position.
type vocab struct {
	tokenToID map[string]int64
	idToToken []string

	padID int64
	unkID int64
	clsID int64
	sepID int64
}

// loadVocab reads the vocab.txt at path. Every failure wraps
// ErrVocabularyLoad.
func loadVocab(path string) (*vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVocabularyLoad, err)
	}
	defer f.Close()

	v, err := readVocab(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVocabularyLoad, path, err)
	}
	return v, nil
}

// readVocab parses one token per line. Blank lines take an ID but can never
// match; any other token appearing twice makes the vocabulary ambiguous.
func readVocab(r io.Reader) (*vocab, error) {
	v := &vocab{tokenToID: make(map[string]int64, 32000)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tok := scanner.Text()
		id := int64(len(v.idToToken))
		v.idToToken = append(v.idToToken, tok)
		if tok == "" {
			continue
		}
		if prev, dup := v.tokenToID[tok]; dup {
			return nil, fmt.Errorf("token %q on lines %d and %d", tok, prev+1, id+1)
		}
		v.tokenToID[tok] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read error: %v", err)
	}
	if len(v.idToToken) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	for tok, dest := range map[string]*int64{
		padToken: &v.padID,
		unkToken: &v.unkID,
		clsToken: &v.clsID,
		sepToken: &v.sepID,
	} {
		id, ok := v.tokenToID[tok]
		if !ok {
			return nil, fmt.Errorf("missing special token %s", tok)
		}
		*dest = id
	}
	return v, nil
}

// lookup returns the ID of token, or the [UNK] ID.
func (v *vocab) lookup(token string) int64 {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return v.unkID
}

func (v *vocab) contains(token string) bool {
	_, ok := v.tokenToID[token]
	return ok
}

func (v *vocab) size() int {
	return len(v.idToToken)
}
