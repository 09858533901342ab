package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tourly/internal/config"
	"tourly/internal/database"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	recordingCleanup *RecordingCleanupJob
	usageRetention   *UsageRetentionJob

	// Tickers for each job type
	recordingTicker *time.Ticker
	retentionTicker *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	s.recordingCleanup = NewRecordingCleanupJob(dbManager, logger, cfg)
	s.usageRetention = NewUsageRetentionJob(dbManager, logger, cfg)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	s.startRecordingCleanupJob()
	s.startUsageRetentionJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startRecordingCleanupJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting recording cleanup job", slog.Duration("interval", interval))
	s.recordingTicker = time.NewTicker(interval)

	go func() {
		// Run initial execution
		s.logger.Info("Running initial recording cleanup...")
		s.executeJobSafely("recording_cleanup", s.recordingCleanup.Run)

		for {
			select {
			case <-s.recordingTicker.C:
				s.executeJobSafely("recording_cleanup", s.recordingCleanup.Run)
			case <-s.ctx.Done():
				s.logger.Info("Recording cleanup job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startUsageRetentionJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting usage retention job", slog.Duration("interval", interval))
	s.retentionTicker = time.NewTicker(interval)

	go func() {
		// Run initial cleanup
		s.logger.Info("Running initial usage retention pass...")
		if err := s.usageRetention.Run(); err != nil {
			s.logger.Error("Error in initial usage retention job", slog.Any("error", err))
		}

		for {
			select {
			case <-s.retentionTicker.C:
				if err := s.usageRetention.Run(); err != nil {
					s.logger.Error("Error in usage retention job", slog.Any("error", err))
				}
			case <-s.ctx.Done():
				s.logger.Info("Usage retention job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.recordingTicker != nil {
		s.recordingTicker.Stop()
	}
	if s.retentionTicker != nil {
		s.retentionTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// CleanupRecordings allows manual triggering of the recording cleanup
func (s *Scheduler) CleanupRecordings() error {
	if !s.enabled {
		return nil
	}
	return s.recordingCleanup.Run()
}
