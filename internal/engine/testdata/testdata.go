package testdata

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed corpus.json
var corpusJSON []byte

// CorpusEntry is a labelled article for classification validation.
type CorpusEntry struct {
	Title            string   `json:"title"`
	Text             string   `json:"text"`
	ExpectedConcept  string   `json:"expected_concept"`
	AcceptedConcepts []string `json:"accepted_concepts,omitempty"`
	Description      string   `json:"description"`
}

// Accepts reports whether conceptID is a correct label for the entry.
func (e CorpusEntry) Accepts(conceptID string) bool {
	if conceptID == e.ExpectedConcept {
		return true
	}
	for _, c := range e.AcceptedConcepts {
		if c == conceptID {
			return true
		}
	}
	return false
}

// LoadCorpus parses the embedded corpus.json and returns all entries.
func LoadCorpus() ([]CorpusEntry, error) {
	var entries []CorpusEntry
	if err := json.Unmarshal(corpusJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus.json: %w", err)
	}
	return entries, nil
}
