// Package jobs defines the background jobs consumed by the worker pool.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/carlvellotti/meme-mage-sub001/internal/pipeline"
)

// ReanalyzeTemplateJob regenerates the description, suggested name and
// embedding of an existing template in the background.
type ReanalyzeTemplateJob struct {
	JobID        string
	TemplateID   uuid.UUID
	Feedback     string
	Orchestrator *pipeline.Orchestrator
	Log          *logrus.Logger
	Timeout      time.Duration
}

// NewReanalyzeTemplateJob creates a ReanalyzeTemplateJob with a generated job ID.
func NewReanalyzeTemplateJob(templateID uuid.UUID, feedback string, orchestrator *pipeline.Orchestrator, log *logrus.Logger, timeout time.Duration) *ReanalyzeTemplateJob {
	return &ReanalyzeTemplateJob{
		JobID:        uuid.NewString(),
		TemplateID:   templateID,
		Feedback:     feedback,
		Orchestrator: orchestrator,
		Log:          log,
		Timeout:      timeout,
	}
}

// ID returns the unique identifier of the job.
func (j *ReanalyzeTemplateJob) ID() string {
	return j.JobID
}

// Execute performs the re-analysis. The job runs detached from the HTTP
// request that enqueued it, so it carries its own timeout.
func (j *ReanalyzeTemplateJob) Execute() error {
	ctx := context.Background()
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	j.Log.Infof("Re-analyzing template %s (job %s)", j.TemplateID, j.JobID)
	if err := j.Orchestrator.Reanalyze(ctx, j.TemplateID, j.Feedback); err != nil {
		return fmt.Errorf("re-analysis of template %s failed: %w", j.TemplateID, err)
	}
	return nil
}
