package jobs

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"hrassist/internal/platform/querier"
)

const (
	JobNotificationEmail = "notification_email"
	JobPolicyReindex     = "policy_reindex"
	JobOTPCleanup        = "otp_cleanup"
	JobPolicyInbox       = "policy_inbox_ingest"
)

type RunFunc func(context.Context) (any, error)

// RunStore records job executions. A nil store skips recording.
type RunStore interface {
	StartRun(ctx context.Context, jobType string) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	runs      RunStore
	queue     chan job
	schedules []schedule
}

type job struct {
	Type string
	Run  RunFunc
}

type schedule struct {
	interval time.Duration
	jobType  string
	run      RunFunc
}

func New(runs RunStore) *Service {
	return &Service{
		runs:  runs,
		queue: make(chan job, 128),
	}
}

// Every registers a periodic job; it must be called before Start.
func (s *Service) Every(interval time.Duration, jobType string, run RunFunc) {
	if interval <= 0 {
		return
	}
	s.schedules = append(s.schedules, schedule{interval: interval, jobType: jobType, run: run})
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	for _, sc := range s.schedules {
		go s.schedule(ctx, sc)
	}
}

// Enqueue hands a job to the background worker. It reports false when the queue is full.
func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		zap.L().Warn("job queue full", zap.String("jobType", jobType))
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				zap.L().Warn("job run failed", zap.String("jobType", j.Type), zap.Error(err))
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.runs != nil {
		id, err := s.runs.StartRun(ctx, j.Type)
		if err != nil {
			zap.L().Warn("job run insert failed", zap.Error(err))
		}
		runID = id
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	if runID != "" {
		detailsJSON, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			zap.L().Warn("job details marshal failed", zap.Error(marshalErr))
			detailsJSON = []byte("{}")
		}
		if updErr := s.runs.FinishRun(ctx, runID, status, detailsJSON); updErr != nil {
			zap.L().Warn("job run update failed", zap.Error(updErr))
		}
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, sc schedule) {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(sc.jobType, sc.run)
		}
	}
}

// PGRuns stores runs in the job_runs table.
type PGRuns struct {
	DB querier.Querier
}

func (p PGRuns) StartRun(ctx context.Context, jobType string) (string, error) {
	var id string
	err := p.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, jobType, "running").Scan(&id)
	return id, err
}

func (p PGRuns) FinishRun(ctx context.Context, runID, status string, details []byte) error {
	_, err := p.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, details, runID)
	return err
}
