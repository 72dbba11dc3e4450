package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/dealdesk/pkg/audit"
	"github.com/platinummonkey/dealdesk/pkg/chatidentity"
	"github.com/platinummonkey/dealdesk/pkg/config"
	"github.com/platinummonkey/dealdesk/pkg/observability"
	"github.com/platinummonkey/dealdesk/pkg/storage"
	"github.com/platinummonkey/dealdesk/pkg/users"
)

// The janitor runs the periodic maintenance work that the API service stays
// out of: purging aged audit entries, dropping expired invites, and
// auto-linking chat identities whose email matches an active user.
func main() {
	schedule := flag.String("schedule", "@hourly", "Cron schedule for maintenance jobs")
	once := flag.Bool("once", false, "Run all jobs once and exit")
	flag.Parse()

	if err := run(*schedule, *once); err != nil {
		fmt.Fprintf(os.Stderr, "dealdesk-janitor: %v\n", err)
		os.Exit(1)
	}
}

func run(schedule string, once bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting DealDesk janitor")

	db, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	j := &janitor{
		logger:    logger,
		audits:    audit.NewStore(db),
		users:     users.NewStore(db),
		chat:      chatidentity.NewService(chatidentity.NewStore(db), chatidentity.NewSettingsStore(db)),
		retention: audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays},
	}
	if j.retention.RetentionDays <= 0 {
		j.retention = audit.DefaultRetentionPolicy()
	}

	if once {
		return j.runAll(context.Background())
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := j.runAll(context.Background()); err != nil {
			logger.WithError(err).Error("Maintenance run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.WithField("schedule", schedule).Info("Janitor scheduled")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infof("Received signal %s, stopping", sig)

	// Let an in-flight run finish before exiting.
	<-c.Stop().Done()
	return nil
}

type janitor struct {
	logger    *observability.Logger
	audits    *audit.Store
	users     *users.Store
	chat      *chatidentity.Service
	retention audit.RetentionPolicy
}

// runAll executes every maintenance job concurrently. Jobs are independent;
// one failing does not stop the others, and the first error is reported.
func (j *janitor) runAll(ctx context.Context) error {
	now := time.Now().UTC()
	var g errgroup.Group

	g.Go(func() error {
		purged, err := j.audits.Purge(ctx, j.retention, now)
		if err != nil {
			return fmt.Errorf("audit purge failed: %w", err)
		}
		j.logger.WithField("purged", purged).Info("Audit retention applied")
		return nil
	})
	g.Go(func() error {
		purged, err := j.users.PurgeExpiredInvites(ctx, now)
		if err != nil {
			return fmt.Errorf("invite purge failed: %w", err)
		}
		j.logger.WithField("purged", purged).Info("Expired invites purged")
		return nil
	})
	g.Go(func() error {
		linked, err := j.chat.AutoLinkByEmail(ctx, now)
		if err != nil {
			return fmt.Errorf("auto-link failed: %w", err)
		}
		j.logger.WithField("linked", linked).Info("Chat identities auto-linked")
		return nil
	})

	return g.Wait()
}
