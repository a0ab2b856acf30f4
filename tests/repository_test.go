package tests

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/repository"
	testingutil "github.com/leadpilot/pipeline-journey/testing"
	"github.com/leadpilot/pipeline-journey/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewLeadRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		stageA, err := fixtures.CreateTestStage("New", 1, models.EntryRuleNone)
		require.NoError(t, err)
		stageB, err := fixtures.CreateTestStage("Contacted", 2, models.EntryRuleNone)
		require.NoError(t, err)

		lead, err := fixtures.CreateTestLead(stageA.ID)
		require.NoError(t, err)

		t.Run("ByUUID", func(t *testing.T) {
			found, err := repo.ByUUID(ctx, lead.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, lead.ID, found.ID)
			assert.Equal(t, stageA.ID, found.StageID)
		})

		t.Run("ByUUIDNotFound", func(t *testing.T) {
			found, err := repo.ByUUID(ctx, uuid.New())
			assert.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("UpdateStageCAS", func(t *testing.T) {
			ok, err := repo.UpdateStageCAS(ctx, lead.ID, stageA.ID, stageB.ID)
			require.NoError(t, err)
			assert.True(t, ok)

			found, err := repo.ByID(ctx, lead.ID)
			require.NoError(t, err)
			assert.Equal(t, stageB.ID, found.StageID)
		})

		t.Run("UpdateStageCASStale", func(t *testing.T) {
			// The lead is at stageB now; expecting stageA must fail
			ok, err := repo.UpdateStageCAS(ctx, lead.ID, stageA.ID, stageA.ID)
			require.NoError(t, err)
			assert.False(t, ok)

			found, err := repo.ByID(ctx, lead.ID)
			require.NoError(t, err)
			assert.Equal(t, stageB.ID, found.StageID)
		})

		t.Run("LinkProposal", func(t *testing.T) {
			require.NoError(t, repo.LinkProposal(ctx, lead.ID, 42))

			found, err := repo.ByID(ctx, lead.ID)
			require.NoError(t, err)
			require.NotNil(t, found.ProposalID)
			assert.Equal(t, uint(42), *found.ProposalID)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestScheduledMessageRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewScheduledMessageRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		stage, err := fixtures.CreateTestStage("Qualified", 1, models.EntryRuleNone)
		require.NoError(t, err)
		tpl, err := fixtures.CreateTestTemplate(stage.ID, "Welcome", 0, models.DelayUnitMinutes)
		require.NoError(t, err)
		lead, err := fixtures.CreateTestLead(stage.ID)
		require.NoError(t, err)

		enteredAt := utils.UTCNow().Truncate(time.Second)

		newRow := func(scheduledFor time.Time) *models.ScheduledMessage {
			return &models.ScheduledMessage{
				LeadID:       lead.ID,
				StageID:      stage.ID,
				TemplateID:   tpl.ID,
				EnteredAt:    enteredAt,
				Title:        tpl.Title,
				Body:         tpl.Body,
				Type:         tpl.Type,
				WebhookURL:   "https://hooks.example.com/messages",
				ScheduledFor: scheduledFor,
				Status:       models.ScheduleStatusPending,
			}
		}

		t.Run("SaveBatchIgnoreConflicts", func(t *testing.T) {
			row := newRow(enteredAt)
			require.NoError(t, repo.SaveBatchIgnoreConflicts(ctx, []*models.ScheduledMessage{row}))

			count, err := repo.Count(ctx, models.ScheduledMessageFilter{LeadID: &lead.ID})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			// Same stage-entry key again: silently skipped
			dup := newRow(enteredAt)
			require.NoError(t, repo.SaveBatchIgnoreConflicts(ctx, []*models.ScheduledMessage{dup}))

			count, err = repo.Count(ctx, models.ScheduledMessageFilter{LeadID: &lead.ID})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		t.Run("ClaimDueSkipsFuture", func(t *testing.T) {
			now := utils.UTCNow()
			claimed, err := repo.ClaimDue(ctx, now.Add(-time.Hour), 10, uuid.NewString(), 5*time.Minute)
			require.NoError(t, err)
			assert.Empty(t, claimed)
		})

		t.Run("ClaimDueAndMarkSent", func(t *testing.T) {
			now := utils.UTCNow()
			token := uuid.NewString()
			claimed, err := repo.ClaimDue(ctx, now, 10, token, 5*time.Minute)
			require.NoError(t, err)
			require.Len(t, claimed, 1)
			assert.Equal(t, models.ScheduleStatusClaimed, claimed[0].Status)
			require.NotNil(t, claimed[0].ClaimToken)
			assert.Equal(t, token, *claimed[0].ClaimToken)

			// A second claimer sees nothing while the claim is live
			other, err := repo.ClaimDue(ctx, now, 10, uuid.NewString(), 5*time.Minute)
			require.NoError(t, err)
			assert.Empty(t, other)

			// Wrong token cannot finish the row
			ok, err := repo.MarkSent(ctx, claimed[0].ID, uuid.NewString(), 1)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = repo.MarkSent(ctx, claimed[0].ID, token, 1)
			require.NoError(t, err)
			assert.True(t, ok)

			row, err := repo.ByID(ctx, claimed[0].ID)
			require.NoError(t, err)
			assert.Equal(t, models.ScheduleStatusSent, row.Status)
			assert.Equal(t, 1, row.Attempts)
			assert.Nil(t, row.ClaimToken)
			assert.Nil(t, row.ClaimExpiresAt)

			// Terminal rows are never claimable again
			again, err := repo.ClaimDue(ctx, utils.UTCNow(), 10, uuid.NewString(), 5*time.Minute)
			require.NoError(t, err)
			assert.Empty(t, again)
		})

		t.Run("ClaimDueRecoversExpiredClaim", func(t *testing.T) {
			other, err := fixtures.CreateTestLead(stage.ID)
			require.NoError(t, err)
			msg, err := fixtures.CreateTestScheduledMessage(other, stage.ID, tpl.ID, &models.ScheduledMessage{
				WebhookURL: "https://hooks.example.com/messages",
			})
			require.NoError(t, err)

			now := utils.UTCNow()
			token := uuid.NewString()
			claimed, err := repo.ClaimDue(ctx, now, 10, token, time.Minute)
			require.NoError(t, err)
			require.Len(t, claimed, 1)
			assert.Equal(t, msg.ID, claimed[0].ID)

			// After the claim TTL passes the row is claimable again
			later := now.Add(2 * time.Minute)
			token2 := uuid.NewString()
			reclaimed, err := repo.ClaimDue(ctx, later, 10, token2, time.Minute)
			require.NoError(t, err)
			require.Len(t, reclaimed, 1)
			assert.Equal(t, msg.ID, reclaimed[0].ID)

			// The original claimer lost; its token no longer finishes the row
			ok, err := repo.MarkFailed(ctx, msg.ID, token, 1, "timeout")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = repo.MarkFailed(ctx, msg.ID, token2, 1, "timeout")
			require.NoError(t, err)
			assert.True(t, ok)

			row, err := repo.ByID(ctx, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ScheduleStatusFailed, row.Status)
			require.NotNil(t, row.LastError)
			assert.Equal(t, "timeout", *row.LastError)
		})

		t.Run("CancelPendingOnlyTouchesPending", func(t *testing.T) {
			other, err := fixtures.CreateTestLead(stage.ID)
			require.NoError(t, err)
			pending, err := fixtures.CreateTestScheduledMessage(other, stage.ID, tpl.ID, &models.ScheduledMessage{
				WebhookURL:   "https://hooks.example.com/messages",
				ScheduledFor: utils.UTCNowAdd(time.Hour),
			})
			require.NoError(t, err)
			sent, err := fixtures.CreateTestScheduledMessage(other, stage.ID, tpl.ID, &models.ScheduledMessage{
				EnteredAt:  utils.UTCNowAdd(time.Second),
				WebhookURL: "https://hooks.example.com/messages",
				Status:     models.ScheduleStatusSent,
			})
			require.NoError(t, err)

			n, err := repo.CancelPending(ctx, other.ID, stage.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			row, err := repo.ByID(ctx, pending.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ScheduleStatusCancelled, row.Status)

			row, err = repo.ByID(ctx, sent.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ScheduleStatusSent, row.Status)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestClaimDueExclusivity(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewScheduledMessageRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		stage, err := fixtures.CreateTestStage("Nurture", 1, models.EntryRuleNone)
		require.NoError(t, err)
		tpl, err := fixtures.CreateTestTemplate(stage.ID, "Follow up", 0, models.DelayUnitMinutes)
		require.NoError(t, err)

		const rows = 20
		for i := 0; i < rows; i++ {
			lead, err := fixtures.CreateTestLead(stage.ID)
			require.NoError(t, err)
			_, err = fixtures.CreateTestScheduledMessage(lead, stage.ID, tpl.ID, &models.ScheduledMessage{
				WebhookURL: "https://hooks.example.com/messages",
			})
			require.NoError(t, err)
		}

		// Several workers race for the same due rows; every row must be won
		// by exactly one of them.
		const workers = 4
		now := utils.UTCNow()
		results := make([][]*models.ScheduledMessage, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				claimed, err := repo.ClaimDue(ctx, now, rows, uuid.NewString(), 5*time.Minute)
				assert.NoError(t, err)
				results[idx] = claimed
			}(i)
		}
		wg.Wait()

		seen := make(map[uint]int)
		total := 0
		for _, claimed := range results {
			for _, msg := range claimed {
				seen[msg.ID]++
				total++
			}
		}
		assert.Equal(t, rows, total)
		for id, n := range seen {
			assert.Equalf(t, 1, n, "schedule %d claimed %d times", id, n)
		}

		return nil
	})
	require.NoError(t, err)
}

func TestDispatchHistoryRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewDispatchHistoryRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		base := utils.UTCNow().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			entry := &models.DispatchHistoryEntry{
				ScheduleID: uint(i + 1),
				LeadID:     1,
				StageID:    1,
				Title:      "Welcome",
				Attempt:    1,
				Success:    true,
				StatusCode: utils.ToPtr(200),
				SentAt:     base.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, repo.Save(ctx, entry))
		}

		t.Run("QueryOrdersMostRecentFirst", func(t *testing.T) {
			leadID := uint(1)
			entries, err := repo.Query(ctx, models.DispatchHistoryFilter{LeadID: &leadID}, 10, 0)
			require.NoError(t, err)
			require.Len(t, entries, 5)
			for i := 1; i < len(entries); i++ {
				assert.False(t, entries[i].SentAt.After(entries[i-1].SentAt))
			}
		})

		t.Run("QueryTimeWindow", func(t *testing.T) {
			leadID := uint(1)
			from := base.Add(90 * time.Second)
			to := base.Add(210 * time.Second)
			entries, err := repo.Query(ctx, models.DispatchHistoryFilter{
				LeadID:     &leadID,
				SentAfter:  &from,
				SentBefore: &to,
			}, 10, 0)
			require.NoError(t, err)
			assert.Len(t, entries, 2)
		})

		t.Run("QueryPagination", func(t *testing.T) {
			leadID := uint(1)
			page1, err := repo.Query(ctx, models.DispatchHistoryFilter{LeadID: &leadID}, 2, 0)
			require.NoError(t, err)
			page2, err := repo.Query(ctx, models.DispatchHistoryFilter{LeadID: &leadID}, 2, 2)
			require.NoError(t, err)
			require.Len(t, page1, 2)
			require.Len(t, page2, 2)
			assert.NotEqual(t, page1[0].ID, page2[0].ID)
		})

		t.Run("ListBySchedule", func(t *testing.T) {
			entries, err := repo.ListBySchedule(ctx, 3)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, uint(3), entries[0].ScheduleID)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestMigrationFillsTimestampsOnCreate(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		stage := &models.PipelineStage{
			Name:      "New",
			SortOrder: 1,
			EntryRule: models.EntryRuleNone,
		}
		require.NoError(t, testDB.DB.Create(stage).Error)

		// Timestamps come from the ORM, not a database-side default
		assert.False(t, stage.CreatedAt.IsZero())
		assert.False(t, stage.UpdatedAt.IsZero())

		lead := &models.Lead{
			UUID:     uuid.New(),
			FullName: "Jordan Doe",
			Phone:    "+15550000000",
			StageID:  stage.ID,
		}
		require.NoError(t, testDB.DB.Create(lead).Error)
		assert.False(t, lead.CreatedAt.IsZero())

		return nil
	})
	require.NoError(t, err)
}

func TestCountByStatus(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewScheduledMessageRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		stage, err := fixtures.CreateTestStage("Onboarding", 1, models.EntryRuleNone)
		require.NoError(t, err)
		lead, err := fixtures.CreateTestLead(stage.ID)
		require.NoError(t, err)

		for i, status := range []models.ScheduleStatus{
			models.ScheduleStatusPending,
			models.ScheduleStatusPending,
			models.ScheduleStatusSent,
		} {
			_, err := fixtures.CreateTestScheduledMessage(lead, stage.ID, uint(i+1), &models.ScheduledMessage{
				WebhookURL: "https://hooks.example.com/messages",
				Status:     status,
			})
			require.NoError(t, err)
		}

		pending, err := repo.CountByStatus(ctx, models.ScheduleStatusPending)
		require.NoError(t, err)
		assert.Equal(t, int64(2), pending)

		sent, err := repo.CountByStatus(ctx, models.ScheduleStatusSent)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sent)

		failed, err := repo.CountByStatus(ctx, models.ScheduleStatusFailed)
		require.NoError(t, err)
		assert.Equal(t, int64(0), failed)

		return nil
	})
	require.NoError(t, err)
}
