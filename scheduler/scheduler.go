package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"ah_scanner/config"
	"ah_scanner/models"
	"ah_scanner/scraper"
	"ah_scanner/storage"
)

const commandPollInterval = 2 * time.Second

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// CompactionRunner is the compaction worker as the scheduler drives it.
type CompactionRunner interface {
	Triggerable
	Run(ctx context.Context, interval time.Duration) error
}

// Poller is the part of the orchestrator the scheduler drives.
type Poller interface {
	RunCycle(ctx context.Context, pages int) (*models.PollRun, error)
	ImportTransactions(ctx context.Context) (*models.PollRun, error)
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

type Scheduler struct {
	cfg        *config.Config
	poller     Poller
	ops        storage.OpsStore
	compaction CompactionRunner
	cron       *cron.Cron
}

func New(cfg *config.Config, poller Poller, ops storage.OpsStore, compaction CompactionRunner) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		poller:     poller,
		ops:        ops,
		compaction: compaction,
		cron:       cron.New(cron.WithLocation(time.UTC)),
	}
}

// Run drives the poll loop, the transaction loop, compaction and the command
// queue until ctx is cancelled or one of them hits a fatal error.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.Retention.CompactionInterval
	if spec := s.cfg.Retention.CompactionCron; spec != "" && s.compaction != nil {
		if _, err := s.cron.AddFunc(spec, s.compaction.Trigger); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		slog.Info("compaction on cron", "spec", spec)
		s.cron.Start()
		defer s.cron.Stop()
		interval = 0
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.pollListings(ctx) })
	g.Go(func() error { return s.pollTransactions(ctx) })
	g.Go(func() error { return s.pollCommands(ctx) })
	if s.compaction != nil {
		g.Go(func() error { return s.compaction.Run(ctx, interval) })
	}

	return g.Wait()
}

func (s *Scheduler) pollListings(ctx context.Context) error {
	slog.Info("starting poll loop",
		"interval", s.cfg.Scanner.Interval, "pages", s.cfg.Scanner.Pages, "initial_pages", s.cfg.Scanner.InitialScanPages)

	if err := s.listingCycle(ctx, s.cfg.Scanner.InitialScanPages); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.Scanner.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("poll loop stopping")
			return nil
		case <-ticker.C:
			if err := s.listingCycle(ctx, s.cfg.Scanner.Pages); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) listingCycle(ctx context.Context, pages int) error {
	_, err := s.poller.RunCycle(ctx, pages)
	return s.triage("poll cycle", err)
}

func (s *Scheduler) pollTransactions(ctx context.Context) error {
	if err := s.triage("transaction import", s.importOnce(ctx)); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.Scanner.TransactionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("transaction loop stopping")
			return nil
		case <-ticker.C:
			if err := s.triage("transaction import", s.importOnce(ctx)); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) importOnce(ctx context.Context) error {
	_, err := s.poller.ImportTransactions(ctx)
	return err
}

func (s *Scheduler) pollCommands(ctx context.Context) error {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.processCommands(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) error {
	cmds, err := s.ops.GetPendingCommands(ctx)
	if err != nil {
		return s.triage("get commands", err)
	}

	for i := range cmds {
		cmd := &cmds[i]
		slog.Info("processing command", "id", cmd.ID, "command", cmd.Command)
		// marked before handling: a failing command is not retried
		if err := s.ops.MarkCommandProcessed(ctx, cmd.ID); err != nil {
			return s.triage("mark command processed", err)
		}
		if err := s.triage(string(cmd.Command), s.handleCommand(ctx, cmd)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdCompactNow:
		if s.compaction == nil {
			return errors.New("compaction worker not running")
		}
		s.compaction.Trigger()
		slog.Info("compaction triggered via command")
		return nil
	default:
		return s.poller.HandleCommand(ctx, cmd)
	}
}

// triage logs recoverable errors and passes fatal ones through.
func (s *Scheduler) triage(what string, err error) error {
	if err == nil {
		return nil
	}
	if scraper.IsFatal(err) {
		slog.Error(what+" failed fatally", "error", err)
		return err
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	slog.Warn(what+" failed", "error", err)
	return nil
}
