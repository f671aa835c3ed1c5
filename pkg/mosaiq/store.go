package mosaiq

import (
	"context"
	"fmt"
	"strings"
)

// AddContent saves an item to the store. When auto-classification is on and
// the model is available, a classification job is started for it.
func (s *Service) AddContent(ctx context.Context, c Content) error {
	if s.store == nil {
		return ErrNoStore
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if err := s.store.PutContent(ctx, c); err != nil {
		return err
	}
	if s.AutoClassificationEnabled() && s.ClassificationAvailable() {
		req := ClassifyItemRequest{ID: c.ID, Title: c.Title, Text: c.Text, Force: true}
		if _, err := s.startJob(ctx, req); err != nil {
			s.logger.Warn("auto-classification failed to start", "content_id", c.ID, "error", err)
		}
	}
	return nil
}

// StoredContent returns a stored item or an error wrapping ErrContentNotFound.
func (s *Service) StoredContent(ctx context.Context, id string) (Content, error) {
	if s.store == nil {
		return Content{}, ErrNoStore
	}
	return s.store.Content(ctx, id)
}

// ContentIDs lists stored content ids, oldest first.
func (s *Service) ContentIDs(ctx context.Context) ([]string, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListContentIDs(ctx)
}

// StoredClassifications returns the persisted classifications of id,
// highest confidence first.
func (s *Service) StoredClassifications(ctx context.Context, id string) ([]Classification, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.Classifications(ctx, id)
}

// VerifyClassification records that the user confirmed conceptID for the
// item. Verified classifications survive reclassification.
func (s *Service) VerifyClassification(ctx context.Context, contentID, conceptID string) error {
	if s.store == nil {
		return ErrNoStore
	}
	if _, err := s.taxonomy.Get(conceptID); err != nil {
		return err
	}
	return s.store.VerifyClassification(ctx, contentID, conceptID)
}

// RemoveContent cancels any job for id and deletes the item with its
// classifications.
func (s *Service) RemoveContent(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrNoStore
	}
	s.jobs.Cancel(id)
	return s.store.DeleteContent(ctx, id)
}

// ContentForConcept lists the stored items classified under conceptID.
func (s *Service) ContentForConcept(ctx context.Context, conceptID string) ([]string, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ContentByConcept(ctx, conceptID)
}
