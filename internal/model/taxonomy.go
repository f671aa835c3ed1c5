package model

import "time"

// Concept is a node in the controlled-vocabulary taxonomy.
type Concept struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Definition string    `json:"definition,omitempty"` // description used alongside the label for embedding
	Synonyms   []string  `json:"synonyms,omitempty"`
	ParentID   string    `json:"parent_id,omitempty"` // empty for top-level concepts
	Embedding  []float32 `json:"embedding,omitempty"` // unit-normalized; nil when the concept could not be embedded
}

// ConceptClassification tags a piece of content with a taxonomy concept.
type ConceptClassification struct {
	ConceptID    string    `json:"concept_id"`
	Confidence   float64   `json:"confidence"` // in [0,1], monotonic with similarity
	ClassifiedAt time.Time `json:"classified_at"`
	UserVerified bool      `json:"user_verified,omitempty"` // set only by user action
}
