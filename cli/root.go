// Package cli wires configuration, storage and mail into the dripcrm
// commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"dripcrm/config"
	"dripcrm/middleware"
	"dripcrm/utils"
	"dripcrm/worker"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "dripcrm",
	Short:         "Drip email sequences for CRM leads",
	Long:          "Runs the sequence API and processes due emails for enrolled leads.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// services holds what every command needs once configuration is loaded.
type services struct {
	cfg            *config.Config
	db             *gorm.DB
	redis          *redis.Client
	locker         utils.Locker
	limiterStorage fiber.Storage
	processor      *worker.SequenceProcessor
	logger         *logrus.Entry
}

func bootstrap() (*services, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := utils.ConfigureLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry disabled")
	}

	rt := &services{
		cfg:    cfg,
		logger: logrus.WithField("env", cfg.Environment),
	}

	rt.db, err = config.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		rt.redis, err = config.ConnectRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		rt.locker = utils.NewRedisLocker(rt.redis)
		rt.limiterStorage = middleware.NewRedisStorage(rt.redis)
		rt.logger.WithField("address", cfg.Redis.Address).Info("Using redis for locks and rate limits")
	} else {
		rt.locker = utils.NewMemoryLocker()
		rt.logger.Warn("Redis disabled: enrollment locks only hold within this process")
	}

	mailer := utils.NewSMTPMailer(cfg.SMTP)
	if !mailer.Configured() {
		rt.logger.Warn("SMTP is not configured: due emails will fail until SMTP_HOST is set")
	}

	rt.processor = worker.NewSequenceProcessor(rt.db, mailer, rt.locker, worker.NewProcessorConfig(cfg), rt.logger)
	return rt, nil
}

func (rt *services) close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if sqlDB, err := rt.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	sentry.Flush(2 * time.Second)
}
