package group

import "context"

// Service exposes the read-side group operations the ledger core owns:
// membership listing for the gate and the append-only activity log. Membership
// mutation lives in group administration, outside this service.
type Service struct {
	repo Repository
}

// NewService constructs a group service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CheckMembership runs the permission gate against the current membership row.
func (s *Service) CheckMembership(ctx context.Context, groupID, userID int64, requiresWrite, requiresOwner bool) (*Membership, error) {
	m, err := s.repo.GetMembership(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if err := Require(m, requiresWrite, requiresOwner); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMembers returns the group's membership rows. Any member may read them.
func (s *Service) ListMembers(ctx context.Context, groupID, userID int64) ([]Membership, error) {
	if _, err := s.CheckMembership(ctx, groupID, userID, false, false); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, groupID)
}

// ListLog returns a page of the group activity log, newest first.
func (s *Service) ListLog(ctx context.Context, groupID, userID int64, page, pageSize int) ([]LogEntry, error) {
	if _, err := s.CheckMembership(ctx, groupID, userID, false, false); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page <= 0 {
		page = 1
	}
	return s.repo.ListLog(ctx, groupID, pageSize, (page-1)*pageSize)
}
