package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"inbox_monitor/internal/domain/activity"
	"inbox_monitor/internal/domain/quota"
)

// ErrAdminNotAuthorized is returned when the caller is not the configured admin.
var ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")

// ErrUserIDRequired is returned for a blank target user id.
var ErrUserIDRequired = errors.New("user id is required")

// ErrActivityUnavailable is returned by RecentActivity when no activity
// reader was wired.
var ErrActivityUnavailable = errors.New("activity log is not configured")

const defaultActivityLimit = 10

// UsageService exposes quota usage and the activity log to the administrator.
type UsageService struct {
	quota           quota.Store
	activity        activity.Reader
	adminTelegramID int64
	log             *logrus.Entry
}

func NewUsageService(qs quota.Store, ar activity.Reader, adminID int64, log *logrus.Entry) *UsageService {
	return &UsageService{
		quota:           qs,
		activity:        ar,
		adminTelegramID: adminID,
		log:             log.WithField("component", "usage"),
	}
}

func (s *UsageService) authorize(performingAdminID int64, userID string) (string, error) {
	if performingAdminID != s.adminTelegramID {
		return "", ErrAdminNotAuthorized
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrUserIDRequired
	}
	return userID, nil
}

// ListUsage returns every counter of the user.
func (s *UsageService) ListUsage(ctx context.Context, performingAdminID int64, userID string) ([]*quota.Counter, error) {
	userID, err := s.authorize(performingAdminID, userID)
	if err != nil {
		return nil, err
	}
	counters, err := s.quota.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage for user %s: %w", userID, err)
	}
	return counters, nil
}

// ResetUsage zeroes all of the user's counters, in every period.
func (s *UsageService) ResetUsage(ctx context.Context, performingAdminID int64, userID string) (int64, error) {
	userID, err := s.authorize(performingAdminID, userID)
	if err != nil {
		return 0, err
	}
	n, err := s.quota.Reset(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset usage for user %s: %w", userID, err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "counters": n, "admin_id": performingAdminID}).Info("Usage reset")
	return n, nil
}

func (s *UsageService) RecentActivity(ctx context.Context, performingAdminID int64, userID string, limit int) ([]activity.Entry, error) {
	userID, err := s.authorize(performingAdminID, userID)
	if err != nil {
		return nil, err
	}
	if s.activity == nil {
		return nil, ErrActivityUnavailable
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	entries, err := s.activity.Recent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity for user %s: %w", userID, err)
	}
	return entries, nil
}
