package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadpilot/pipeline-journey/config"
	"github.com/leadpilot/pipeline-journey/models"
	"github.com/leadpilot/pipeline-journey/repository"
	"github.com/leadpilot/pipeline-journey/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	dispatchClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_claimed_total",
		Help: "Total number of scheduled messages claimed by the dispatch worker",
	})

	dispatchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_attempts_total",
		Help: "Total delivery attempts partitioned by outcome",
	}, []string{"outcome"})

	dispatchFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_finished_total",
		Help: "Total messages moved to a terminal state, partitioned by status",
	}, []string{"status"})

	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_delivery_duration_seconds",
		Help:    "Webhook delivery latencies in seconds",
		Buckets: prometheus.DefBuckets,
	})

	dispatchPendingBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_pending_backlog",
		Help: "Number of scheduled messages currently waiting to be dispatched",
	})
)

// DispatchWorker periodically claims due scheduled messages and delivers
// them to their webhook. Claims carry an expiry so messages held by a
// crashed worker become claimable again after the TTL.
type DispatchWorker struct {
	scheduleRepo repository.ScheduledMessageRepository
	historyRepo  repository.DispatchHistoryRepository
	client       WebhookClient
	logger       *log.Logger
	cfg          config.DispatchConfig
}

func NewDispatchWorker(
	scheduleRepo repository.ScheduledMessageRepository,
	historyRepo repository.DispatchHistoryRepository,
	client WebhookClient,
	cfg config.DispatchConfig,
	logCfg config.LoggingConfig,
) *DispatchWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	w := &DispatchWorker{
		scheduleRepo: scheduleRepo,
		historyRepo:  historyRepo,
		client:       client,
		cfg:          cfg,
	}
	w.initLogger(logCfg)
	return w
}

// initLogger writes to stdout and, when a file path is configured, a
// size-rotated log file.
func (w *DispatchWorker) initLogger(logCfg config.LoggingConfig) {
	out := io.Writer(os.Stdout)
	if logCfg.FilePath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logCfg.FilePath,
			MaxSize:    logCfg.MaxSize,
			MaxBackups: logCfg.MaxBackups,
			MaxAge:     logCfg.MaxAge,
			Compress:   logCfg.Compress,
		})
	}
	w.logger = log.New(out, "dispatch ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the worker loop in a background goroutine and returns a
// stop function.
func (w *DispatchWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		w.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()

	return cancel
}

// RunOnce claims one batch of due messages and processes them. Exported so
// callers can drive the worker without the ticker loop.
func (w *DispatchWorker) RunOnce(ctx context.Context) {
	defer w.observeBacklog(ctx)

	claimToken := uuid.NewString()
	claimed, err := w.scheduleRepo.ClaimDue(ctx, utils.UTCNow(), w.cfg.BatchSize, claimToken, w.cfg.ClaimTTL)
	if err != nil {
		w.logger.Printf("claim due messages failed: %v", err)
		return
	}
	if len(claimed) == 0 {
		return
	}
	dispatchClaimedTotal.Add(float64(len(claimed)))
	w.logger.Printf("claimed %d due messages", len(claimed))

	var wg sync.WaitGroup
	for _, msg := range claimed {
		m := msg
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processMessage(ctx, m, claimToken)
		}()
	}
	wg.Wait()
}

// observeBacklog exports how many messages are still waiting after a pass.
func (w *DispatchWorker) observeBacklog(ctx context.Context) {
	backlog, err := w.scheduleRepo.CountByStatus(ctx, models.ScheduleStatusPending)
	if err != nil {
		w.logger.Printf("count pending backlog failed: %v", err)
		return
	}
	dispatchPendingBacklog.Set(float64(backlog))
}

// processMessage attempts delivery with exponential backoff until success,
// the attempt ceiling, or context cancellation. Every attempt is recorded in
// history regardless of outcome.
func (w *DispatchWorker) processMessage(ctx context.Context, msg *models.ScheduledMessage, claimToken string) {
	if msg.WebhookURL == "" {
		attempt := msg.Attempts + 1
		w.recordAttempt(ctx, msg, attempt, false, nil, models.DispatchErrorNoWebhookConfigured)
		w.finishFailed(ctx, msg, claimToken, attempt, models.DispatchErrorNoWebhookConfigured)
		return
	}

	attempt := msg.Attempts
	for attempt < w.cfg.MaxAttempts {
		attempt++

		start := time.Now()
		statusCode, err := w.client.Deliver(ctx, msg)
		dispatchDuration.Observe(time.Since(start).Seconds())

		var codePtr *int
		if statusCode != 0 {
			codePtr = &statusCode
		}

		if err == nil {
			dispatchAttemptsTotal.WithLabelValues("success").Inc()
			w.recordAttempt(ctx, msg, attempt, true, codePtr, "")
			ok, markErr := w.scheduleRepo.MarkSent(ctx, msg.ID, claimToken, attempt)
			if markErr != nil {
				w.logger.Printf("mark sent failed for schedule id=%d: %v", msg.ID, markErr)
				return
			}
			if !ok {
				w.logger.Printf("claim lost before mark sent for schedule id=%d", msg.ID)
				return
			}
			dispatchFinishedTotal.WithLabelValues(models.ScheduleStatusSent.String()).Inc()
			w.logger.Printf("delivered schedule id=%d lead=%d attempt=%d", msg.ID, msg.LeadID, attempt)
			return
		}

		dispatchAttemptsTotal.WithLabelValues("failure").Inc()
		w.recordAttempt(ctx, msg, attempt, false, codePtr, err.Error())
		w.logger.Printf("delivery failed for schedule id=%d attempt=%d: %v", msg.ID, attempt, err)

		if attempt >= w.cfg.MaxAttempts {
			w.finishFailed(ctx, msg, claimToken, attempt, err.Error())
			return
		}

		select {
		case <-ctx.Done():
			// Leave the row claimed; the claim TTL makes it claimable again.
			return
		case <-time.After(w.backoff(attempt)):
		}
	}
}

// backoff doubles per attempt from the configured base, capped.
func (w *DispatchWorker) backoff(attempt int) time.Duration {
	d := w.cfg.BackoffBase
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if w.cfg.BackoffCap > 0 && d >= w.cfg.BackoffCap {
			return w.cfg.BackoffCap
		}
	}
	if w.cfg.BackoffCap > 0 && d > w.cfg.BackoffCap {
		d = w.cfg.BackoffCap
	}
	return d
}

func (w *DispatchWorker) finishFailed(ctx context.Context, msg *models.ScheduledMessage, claimToken string, attempts int, lastError string) {
	ok, err := w.scheduleRepo.MarkFailed(ctx, msg.ID, claimToken, attempts, lastError)
	if err != nil {
		w.logger.Printf("mark failed failed for schedule id=%d: %v", msg.ID, err)
		return
	}
	if !ok {
		w.logger.Printf("claim lost before mark failed for schedule id=%d", msg.ID)
		return
	}
	dispatchFinishedTotal.WithLabelValues(models.ScheduleStatusFailed.String()).Inc()
}

func (w *DispatchWorker) recordAttempt(ctx context.Context, msg *models.ScheduledMessage, attempt int, success bool, statusCode *int, errMsg string) {
	entry := &models.DispatchHistoryEntry{
		ScheduleID: msg.ID,
		LeadID:     msg.LeadID,
		StageID:    msg.StageID,
		Title:      msg.Title,
		Attempt:    attempt,
		Success:    success,
		StatusCode: statusCode,
		SentAt:     utils.UTCNow(),
	}
	if errMsg != "" {
		entry.Error = &errMsg
	}
	if err := w.historyRepo.Save(ctx, entry); err != nil {
		w.logger.Printf("record history failed for schedule id=%d: %v", msg.ID, err)
	}
}
