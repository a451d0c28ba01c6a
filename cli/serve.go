package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dripcrm/config"
	"dripcrm/routes"
	"dripcrm/worker"

	"github.com/spf13/cobra"
)

var serveNoWorker bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not run the in-process cron even if SEQUENCE_CRON_SPEC is set")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long:  "Serve the sequence API, the process trigger and the public unsubscribe and webhook endpoints.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		workerDone := make(chan struct{})
		if spec := rt.cfg.Sequence.CronSpec; spec != "" && !serveNoWorker {
			w := worker.NewSequenceWorker(rt.processor, spec, rt.logger)
			go func() {
				defer close(workerDone)
				if err := w.Start(ctx); err != nil {
					rt.logger.WithError(err).Error("Sequence worker stopped")
				}
			}()
		} else {
			close(workerDone)
		}

		feedbackDone := make(chan struct{})
		if queueURL := rt.cfg.SESFeedback.QueueURL; queueURL != "" {
			client, err := config.NewSQSClient(rt.cfg.SESFeedback)
			if err != nil {
				stop()
				<-workerDone
				return err
			}
			consumer := worker.NewSESFeedbackConsumer(client, queueURL, worker.NewFeedbackRecorder(rt.db), rt.logger)
			go func() {
				defer close(feedbackDone)
				consumer.Start(ctx)
			}()
		} else {
			close(feedbackDone)
		}

		app := routes.NewApp(routes.Dependencies{
			DB:             rt.db,
			Config:         rt.cfg,
			Processor:      rt.processor,
			LimiterStorage: rt.limiterStorage,
			Logger:         rt.logger,
		})

		listenErr := make(chan error, 1)
		go func() {
			rt.logger.WithField("port", rt.cfg.ServerPort).Info("Server starting")
			listenErr <- app.Listen(":" + rt.cfg.ServerPort)
		}()

		select {
		case err := <-listenErr:
			stop()
			<-workerDone
			<-feedbackDone
			return err
		case <-ctx.Done():
		}

		rt.logger.Info("Shutting down...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			rt.logger.WithError(err).Warn("Server shutdown incomplete")
		}
		<-workerDone
		<-feedbackDone
		if err := <-listenErr; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
