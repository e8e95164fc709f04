// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"comm-dispatch/internal/common/config"
	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/common/metrics"
	"comm-dispatch/internal/common/observability"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Worker is an open job worker for a single task type.
type Worker struct {
	taskType string
	worker   worker.JobWorker
	logger   logger.Logger
}

// StartWorker opens a job worker for taskType. It returns nil when the worker is
// disabled in config.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler worker.JobHandler, log logger.Logger) *Worker {
	fields := map[string]interface{}{"taskType": taskType}
	if !wcfg.Enabled {
		log.Info("worker disabled", fields)
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})

	return &Worker{
		taskType: taskType,
		worker:   jobWorker,
		logger:   log.WithFields(fields),
	}
}

func (w *Worker) TaskType() string {
	return w.taskType
}

// Stop closes the worker and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

// JobTracker records metrics for one job from activation to completion.
type JobTracker struct {
	taskType string
	obs      *observability.Observability
	start    time.Time
}

// TrackJob marks a job active. Call Done exactly once.
func TrackJob(obs *observability.Observability, taskType string) *JobTracker {
	metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
	return &JobTracker{taskType: taskType, obs: obs, start: time.Now()}
}

// Done records the outcome. errorCode is only used for failures.
func (t *JobTracker) Done(ctx context.Context, status, errorCode string) {
	elapsed := time.Since(t.start)
	metrics.WorkerJobsActive.WithLabelValues(t.taskType).Dec()
	metrics.WorkerJobDuration.WithLabelValues(t.taskType).Observe(elapsed.Seconds())

	if status == StatusCompleted {
		metrics.WorkerJobsCompleted.WithLabelValues(t.taskType).Inc()
	} else {
		metrics.WorkerJobsFailed.WithLabelValues(t.taskType, errorCode).Inc()
	}

	t.obs.RecordJobProcessed(ctx, t.taskType, status)
	t.obs.RecordJobDuration(ctx, t.taskType, elapsed, status)
}

// CompleteJob completes job with output as its variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("send complete job command: %w", err)
	}
	return nil
}
