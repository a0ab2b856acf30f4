// Package services provides external service integrations and technical concerns for the core
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/leadpilot/pipeline-journey/config"
)

// CalendarService answers whether a lead already has a qualifying
// future-or-present meeting scheduled. The calendar itself lives in an
// external collaborator; this is a read-only query client.
type CalendarService interface {
	HasUpcomingMeeting(ctx context.Context, leadID uint) (bool, error)
}

// CalendarServiceImpl implements CalendarService against the collaborator's HTTP API
type CalendarServiceImpl struct {
	config *config.CalendarConfig
	client *http.Client
}

// NewCalendarService creates a new calendar service instance
func NewCalendarService(cfg *config.CalendarConfig) CalendarService {
	return &CalendarServiceImpl{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type upcomingMeetingsResponse struct {
	Count int `json:"count"`
}

// HasUpcomingMeeting queries the calendar collaborator for meetings of the
// lead starting now or later
func (s *CalendarServiceImpl) HasUpcomingMeeting(ctx context.Context, leadID uint) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/meetings/upcoming?lead_id=%d", s.config.APIDomain, leadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create calendar request: %w", err)
	}
	if s.config.APIKey != "" {
		req.Header.Set("x-api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("calendar http status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read calendar response: %w", err)
	}

	var out upcomingMeetingsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("failed to decode calendar response: %w", err)
	}

	return out.Count > 0, nil
}

// MockCalendarService is an in-memory CalendarService for development and tests
type MockCalendarService struct {
	Meetings map[uint]bool
	Err      error
}

func NewMockCalendarService() *MockCalendarService {
	return &MockCalendarService{Meetings: make(map[uint]bool)}
}

func (m *MockCalendarService) HasUpcomingMeeting(_ context.Context, leadID uint) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Meetings[leadID], nil
}

// ScheduleMeeting marks a lead as having an upcoming meeting
func (m *MockCalendarService) ScheduleMeeting(leadID uint) {
	m.Meetings[leadID] = true
}
