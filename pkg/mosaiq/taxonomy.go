package mosaiq

import "context"

// TaxonomyConcepts returns every concept in taxonomy order.
func (s *Service) TaxonomyConcepts() []Concept {
	return s.taxonomy.All()
}

// TaxonomyConcept returns the concept with id or an error wrapping
// ErrNotFound.
func (s *Service) TaxonomyConcept(id string) (Concept, error) {
	return s.taxonomy.Get(id)
}

// RootConcepts returns the top-level concepts.
func (s *Service) RootConcepts() []Concept {
	return s.taxonomy.Roots()
}

// ChildConcepts returns the direct children of id in taxonomy order.
func (s *Service) ChildConcepts(id string) []Concept {
	return s.taxonomy.Children(id)
}

// ParentConcept returns the parent of id. ok is false for roots and unknown ids.
func (s *Service) ParentConcept(id string) (parent Concept, ok bool) {
	return s.taxonomy.Parent(id)
}

// AncestorConcepts returns the ancestors of id, nearest first.
func (s *Service) AncestorConcepts(id string) []Concept {
	return s.taxonomy.Ancestors(id)
}

// SearchTaxonomyConcepts finds concepts by label, synonym or definition.
// When nothing matches lexically and the model is available, the closest
// concepts by embedding are returned.
func (s *Service) SearchTaxonomyConcepts(ctx context.Context, query string) []Concept {
	return s.taxonomy.Search(ctx, query)
}
