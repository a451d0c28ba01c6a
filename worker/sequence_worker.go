package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// BatchProcessor runs one pass over the active enrollments.
type BatchProcessor interface {
	ProcessAll(ctx context.Context) (*ProcessSummary, error)
}

// SequenceWorker triggers the processor on a cron schedule inside the API
// process. Runs never overlap; a tick that fires mid-run is dropped.
type SequenceWorker struct {
	processor BatchProcessor
	spec      string
	logger    *logrus.Entry
}

func NewSequenceWorker(processor BatchProcessor, spec string, logger *logrus.Entry) *SequenceWorker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SequenceWorker{
		processor: processor,
		spec:      spec,
		logger:    logger.WithField("component", "sequence_worker"),
	}
}

// Start blocks until ctx is cancelled, then waits for an in-flight run.
func (w *SequenceWorker) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(w.spec, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid SEQUENCE_CRON_SPEC %q: %w", w.spec, err)
	}

	w.logger.WithField("schedule", w.spec).Info("Sequence worker started")
	c.Start()

	<-ctx.Done()
	w.logger.Info("Sequence worker shutting down...")
	<-c.Stop().Done()
	return nil
}

// RunOnce performs a single processor pass and logs its summary.
func (w *SequenceWorker) RunOnce(ctx context.Context) *ProcessSummary {
	summary, err := w.processor.ProcessAll(ctx)
	if err != nil {
		w.logger.WithError(err).Error("Sequence run failed")
	}
	return summary
}
