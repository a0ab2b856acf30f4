package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leadpilot/pipeline-journey/app/scheduler"
	"github.com/leadpilot/pipeline-journey/config"
	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/repository"
	testingutil "github.com/leadpilot/pipeline-journey/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatchWorker(testDB *testingutil.TestDB, maxAttempts int) (*scheduler.DispatchWorker, repository.ScheduledMessageRepository, repository.DispatchHistoryRepository) {
	scheduleRepo := repository.NewScheduledMessageRepository(testDB.DB)
	historyRepo := repository.NewDispatchHistoryRepository(testDB.DB)
	client := scheduler.NewWebhookClient(config.WebhookConfig{
		Timeout:   5 * time.Second,
		AuthToken: "test-token",
	})
	worker := scheduler.NewDispatchWorker(scheduleRepo, historyRepo, client, config.DispatchConfig{
		Interval:    time.Minute,
		BatchSize:   10,
		ClaimTTL:    5 * time.Minute,
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, config.LoggingConfig{})
	return worker, scheduleRepo, historyRepo
}

func TestDispatchWorkerDeliversDueMessage(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		var received atomic.Int32
		var mu sync.Mutex
		var lastPayload scheduler.WebhookPayload
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received.Add(1)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			mu.Lock()
			defer mu.Unlock()
			require.NoError(t, json.NewDecoder(r.Body).Decode(&lastPayload))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		stage, err := fixtures.CreateTestStage("Onboarding", 1, models.EntryRuleNone)
		require.NoError(t, err)
		lead, err := fixtures.CreateTestLead(stage.ID)
		require.NoError(t, err)
		msg, err := fixtures.CreateTestScheduledMessage(lead, stage.ID, 1, &models.ScheduledMessage{
			Title:      "Welcome",
			Body:       "Hello there",
			WebhookURL: srv.URL,
		})
		require.NoError(t, err)

		worker, scheduleRepo, historyRepo := newDispatchWorker(testDB, 3)
		worker.RunOnce(ctx)

		assert.Equal(t, int32(1), received.Load())
		mu.Lock()
		assert.Equal(t, msg.ID, lastPayload.ScheduleID)
		assert.Equal(t, lead.ID, lastPayload.LeadID)
		assert.Equal(t, lead.FullName, lastPayload.LeadName)
		assert.Equal(t, lead.Phone, lastPayload.LeadPhone)
		assert.Equal(t, lead.Email, lastPayload.LeadEmail)
		assert.Equal(t, []string(lead.Tags), lastPayload.LeadTags)
		assert.Equal(t, "Welcome", lastPayload.Title)
		assert.Equal(t, "Hello there", lastPayload.Body)
		mu.Unlock()

		row, err := scheduleRepo.ByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleStatusSent, row.Status)
		assert.Equal(t, 1, row.Attempts)
		assert.Nil(t, row.ClaimToken)

		entries, err := historyRepo.ListBySchedule(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Success)
		require.NotNil(t, entries[0].StatusCode)
		assert.Equal(t, http.StatusOK, *entries[0].StatusCode)

		// A second run finds nothing left to deliver
		worker.RunOnce(ctx)
		assert.Equal(t, int32(1), received.Load())

		return nil
	})
	require.NoError(t, err)
}

func TestDispatchWorkerRetriesUntilSuccess(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		stage, err := fixtures.CreateTestStage("Onboarding", 1, models.EntryRuleNone)
		require.NoError(t, err)
		lead, err := fixtures.CreateTestLead(stage.ID)
		require.NoError(t, err)
		msg, err := fixtures.CreateTestScheduledMessage(lead, stage.ID, 1, &models.ScheduledMessage{
			WebhookURL: srv.URL,
		})
		require.NoError(t, err)

		worker, scheduleRepo, historyRepo := newDispatchWorker(testDB, 5)
		worker.RunOnce(ctx)

		assert.Equal(t, int32(4), calls.Load())

		row, err := scheduleRepo.ByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleStatusSent, row.Status)
		assert.Equal(t, 4, row.Attempts)

		entries, err := historyRepo.ListBySchedule(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		for i, entry := range entries {
			assert.Equal(t, i+1, entry.Attempt)
			assert.Equal(t, i == 3, entry.Success)
		}

		return nil
	})
	require.NoError(t, err)
}

func TestDispatchWorkerStopsAtAttemptCeiling(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		stage, err := fixtures.CreateTestStage("Onboarding", 1, models.EntryRuleNone)
		require.NoError(t, err)
		lead, err := fixtures.CreateTestLead(stage.ID)
		require.NoError(t, err)
		msg, err := fixtures.CreateTestScheduledMessage(lead, stage.ID, 1, &models.ScheduledMessage{
			WebhookURL: srv.URL,
		})
		require.NoError(t, err)

		worker, scheduleRepo, historyRepo := newDispatchWorker(testDB, 2)
		worker.RunOnce(ctx)

		assert.Equal(t, int32(2), calls.Load())

		row, err := scheduleRepo.ByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleStatusFailed, row.Status)
		assert.Equal(t, 2, row.Attempts)
		require.NotNil(t, row.LastError)
		assert.Contains(t, *row.LastError, "502")

		entries, err := historyRepo.ListBySchedule(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, entry := range entries {
			assert.False(t, entry.Success)
		}

		// Failed is terminal: another run never retries it
		worker.RunOnce(ctx)
		assert.Equal(t, int32(2), calls.Load())

		return nil
	})
	require.NoError(t, err)
}

func TestDispatchWorkerFailsFastWithoutWebhook(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		stage, err := fixtures.CreateTestStage("Onboarding", 1, models.EntryRuleNone)
		require.NoError(t, err)
		lead, err := fixtures.CreateTestLead(stage.ID)
		require.NoError(t, err)
		msg, err := fixtures.CreateTestScheduledMessage(lead, stage.ID, 1, &models.ScheduledMessage{
			WebhookURL: "",
		})
		require.NoError(t, err)

		worker, scheduleRepo, historyRepo := newDispatchWorker(testDB, 3)
		worker.RunOnce(ctx)

		row, err := scheduleRepo.ByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleStatusFailed, row.Status)
		require.NotNil(t, row.LastError)
		assert.Equal(t, models.DispatchErrorNoWebhookConfigured, *row.LastError)

		entries, err := historyRepo.ListBySchedule(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Success)
		require.NotNil(t, entries[0].Error)
		assert.Equal(t, models.DispatchErrorNoWebhookConfigured, *entries[0].Error)

		return nil
	})
	require.NoError(t, err)
}

func TestDispatchWorkerSkipsMessagesNotYetDue(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		stage, err := fixtures.CreateTestStage("Onboarding", 1, models.EntryRuleNone)
		require.NoError(t, err)
		lead, err := fixtures.CreateTestLead(stage.ID)
		require.NoError(t, err)
		msg, err := fixtures.CreateTestScheduledMessage(lead, stage.ID, 1, &models.ScheduledMessage{
			WebhookURL:   srv.URL,
			ScheduledFor: time.Now().UTC().Add(24 * time.Hour),
		})
		require.NoError(t, err)

		worker, scheduleRepo, _ := newDispatchWorker(testDB, 3)
		worker.RunOnce(ctx)

		assert.Equal(t, int32(0), calls.Load())

		row, err := scheduleRepo.ByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleStatusPending, row.Status)

		return nil
	})
	require.NoError(t, err)
}
