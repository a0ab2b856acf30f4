// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/leadpilot/pipeline-journey/models"
	"github.com/stretchr/testify/assert"
)

func TestStageEntryRule(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.True(t, models.EntryRuleNone.Valid())
		assert.True(t, models.EntryRuleRequiresLinkedProposal.Valid())
		assert.True(t, models.EntryRuleRequiresScheduledMeeting.Valid())
		assert.False(t, models.StageEntryRule("requires_payment").Valid())
	})

	t.Run("ScanDefaultsToNone", func(t *testing.T) {
		var rule models.StageEntryRule
		err := rule.Scan(nil)
		assert.NoError(t, err)
		assert.Equal(t, models.EntryRuleNone, rule)
	})
}

func TestDelayUnitDuration(t *testing.T) {
	assert.Equal(t, 15*time.Minute, models.DelayUnitMinutes.Duration(15))
	assert.Equal(t, 3*time.Hour, models.DelayUnitHours.Duration(3))
	assert.Equal(t, 48*time.Hour, models.DelayUnitDays.Duration(2))
	assert.Equal(t, time.Duration(0), models.DelayUnit("weeks").Duration(1))
}

func TestJourneyTemplateDelay(t *testing.T) {
	tpl := models.JourneyTemplate{DelayValue: 1, DelayUnit: models.DelayUnitDays}
	assert.Equal(t, 24*time.Hour, tpl.Delay())
}

func TestScheduleStatus(t *testing.T) {
	t.Run("Terminal", func(t *testing.T) {
		assert.False(t, models.ScheduleStatusPending.Terminal())
		assert.False(t, models.ScheduleStatusClaimed.Terminal())
		assert.True(t, models.ScheduleStatusSent.Terminal())
		assert.True(t, models.ScheduleStatusFailed.Terminal())
		assert.True(t, models.ScheduleStatusCancelled.Terminal())
	})

	t.Run("Valid", func(t *testing.T) {
		assert.True(t, models.ScheduleStatusPending.Valid())
		assert.False(t, models.ScheduleStatus("queued").Valid())
	})
}
