package listing

import "context"

// Reader abstracts repository operations for the service.
type Reader interface {
	GetByID(ctx context.Context, id string) (Summary, error)
	List(ctx context.Context, category string, limit int) ([]Summary, error)
	BookedRanges(ctx context.Context, listingID string) ([][2]string, error)
}

// Service exposes the listing browse surface.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the listing for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Summary, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit listings, optionally filtered by category.
func (s *Service) List(ctx context.Context, category string, limit int) ([]Summary, error) {
	return s.repo.List(ctx, category, limit)
}

// BookedRanges returns the date windows already held by active bookings.
func (s *Service) BookedRanges(ctx context.Context, listingID string) ([][2]string, error) {
	return s.repo.BookedRanges(ctx, listingID)
}
