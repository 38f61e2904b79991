package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/aristath/clerk/internal/audit"
	"github.com/aristath/clerk/internal/config"
	"github.com/aristath/clerk/internal/orchestrator"
	"github.com/aristath/clerk/internal/queue"
	"github.com/aristath/clerk/internal/recovery"
	"github.com/aristath/clerk/internal/server"
	"github.com/aristath/clerk/internal/state"
	"github.com/aristath/clerk/internal/tui"
	"github.com/aristath/clerk/internal/watcher"
)

func main() {
	app := &cli.App{
		Name:  "clerk",
		Usage: "Folder-based automation pipeline: files in, drafts out, humans approve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "base",
				Usage: "Pipeline base directory",
				Value: ".",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the queue directories and a default clerk.yaml",
				Action: initPipeline,
			},
			{
				Name:      "run",
				Usage:     "Run the reasoning loop until the queues drain or the budget runs out",
				ArgsUsage: "[prompt]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max-iterations",
						Usage: "Iteration budget (0 means use clerk.yaml)",
					},
					&cli.BoolFlag{
						Name:  "no-audit",
						Usage: "Disable audit logging for this run",
					},
				},
				Action: runLoop,
			},
			{
				Name:   "watch",
				Usage:  "Watch inbox/ and turn dropped files into work items",
				Action: runWatcher,
			},
			{
				Name:      "approve",
				Usage:     "Approve a pending draft by stem",
				ArgsUsage: "<stem>",
				Action:    approveDraft,
			},
			{
				Name:      "reject",
				Usage:     "Reject a pending draft by stem",
				ArgsUsage: "<stem>",
				Action:    rejectDraft,
			},
			{
				Name:  "status",
				Usage: "Show queue depths",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "live",
						Usage: "Open the live dashboard",
					},
				},
				Action: showStatus,
			},
			{
				Name:  "serve",
				Usage: "Serve the status API over HTTP",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "Listen port (0 means use clerk.yaml)",
					},
				},
				Action: serveAPI,
			},
			{
				Name:  "report",
				Usage: "Write an audit briefing into briefings/",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "How many days back to summarize",
						Value: 7,
					},
				},
				Action: writeReport,
			},
			{
				Name:   "cleanup",
				Usage:  "Delete audit containers older than the retention window",
				Action: cleanupAudit,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok && exitErr.ExitCode() != 1 {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// setup loads config and the directory layout for a command.
func setup(c *cli.Context) (config.Config, queue.Dirs, error) {
	base := c.String("base")
	cfg, err := config.Load(base)
	if err != nil {
		return cfg, queue.Dirs{}, err
	}
	return cfg, queue.NewDirs(base), nil
}

func newAuditStore(cfg config.Config, dirs queue.Dirs, log *slog.Logger) *audit.Store {
	store := audit.NewStore(dirs.Logs, log)
	store.SetRetention(cfg.RetentionDays)
	return store
}

func initPipeline(c *cli.Context) error {
	base := c.String("base")
	dirs := queue.NewDirs(base)
	if err := dirs.EnsureAll(); err != nil {
		return err
	}
	if err := config.EnsureFile(base); err != nil {
		return err
	}

	fmt.Printf("Pipeline initialized in %s\n\n", base)
	fmt.Println("Drop work into inbox/ or new-work/, then:")
	fmt.Println("  clerk run          process everything")
	fmt.Println("  clerk status       see where things stand")
	fmt.Println("  clerk approve X    release a waiting draft")
	return nil
}

func runLoop(c *cli.Context) error {
	cfg, dirs, err := setup(c)
	if err != nil {
		return err
	}
	if err := dirs.EnsureAll(); err != nil {
		return err
	}

	log := newLogger()

	var store *audit.Store
	if !c.Bool("no-audit") {
		store = newAuditStore(cfg, dirs, log)
	}

	maxIterations := c.Int("max-iterations")
	if maxIterations <= 0 {
		maxIterations = cfg.MaxIterations
	}

	rec := recovery.NewCoordinator(dirs, recovery.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.BaseDelay(),
		MaxDelay:   cfg.MaxDelay(),
	}, log)

	run := state.NewRunState(uuid.NewString())
	machine := orchestrator.NewMachine(dirs, store, rec, run, log)
	loop := orchestrator.NewLoop(dirs, machine, store, run, maxIterations, log)
	loop.SetPrompt(c.Args().First())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	complete, err := loop.Run(ctx)

	// The run summary is written whatever happened; a crash-free partial
	// run should still leave its trace.
	if saveErr := state.NewPersistence(dirs.Logs).Save(run); saveErr != nil {
		log.Warn("failed to save run state", "err", saveErr)
	}

	if err != nil {
		return err
	}
	if !complete {
		return cli.Exit(fmt.Sprintf("Stopped after %d iterations with work remaining; run again or approve pending drafts", maxIterations), 2)
	}

	fmt.Printf("All tasks completed in %d iteration(s)\n", run.Iterations)
	return nil
}

func runWatcher(c *cli.Context) error {
	_, dirs, err := setup(c)
	if err != nil {
		return err
	}
	if err := dirs.EnsureAll(); err != nil {
		return err
	}

	log := newLogger()
	w, err := watcher.New(dirs, log)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", dirs.Inbox)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func approveDraft(c *cli.Context) error {
	return moveDraft(c, queue.Approve, "approved")
}

func rejectDraft(c *cli.Context) error {
	return moveDraft(c, queue.Reject, "rejected")
}

func moveDraft(c *cli.Context, act func(queue.Dirs, string) (string, error), status string) error {
	stem := c.Args().First()
	if stem == "" {
		return fmt.Errorf("usage: clerk %s <stem>", c.Command.Name)
	}

	cfg, dirs, err := setup(c)
	if err != nil {
		return err
	}

	dst, err := act(dirs, stem)
	if err != nil {
		return err
	}

	log := newLogger()
	store := newAuditStore(cfg, dirs, log)
	if err := store.LogApproval("hitl_approval", dst, status, "Via clerk CLI"); err != nil {
		log.Warn("audit write failed", "err", err)
	}

	fmt.Printf("%s: %s\n", status, dst)
	return nil
}

func showStatus(c *cli.Context) error {
	cfg, dirs, err := setup(c)
	if err != nil {
		return err
	}

	if !c.Bool("live") {
		fmt.Println(tui.RenderOneShot(dirs))
		return nil
	}

	store := newAuditStore(cfg, dirs, slog.New(slog.DiscardHandler))
	model := tui.NewStatusModel(dirs, store)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func serveAPI(c *cli.Context) error {
	cfg, dirs, err := setup(c)
	if err != nil {
		return err
	}

	port := c.Int("port")
	if port <= 0 {
		port = cfg.ServerPort
	}

	log := newLogger()
	srv := server.NewServer(dirs, newAuditStore(cfg, dirs, log), port, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	return srv.Start()
}

func writeReport(c *cli.Context) error {
	cfg, dirs, err := setup(c)
	if err != nil {
		return err
	}

	days := c.Int("days")
	if days < 1 {
		days = 7
	}

	store := newAuditStore(cfg, dirs, newLogger())
	now := time.Now()
	sum, err := store.Summarize(now.AddDate(0, 0, -days), now)
	if err != nil {
		return err
	}

	path, err := audit.WriteBriefing(dirs.Briefings, sum, now)
	if err != nil {
		return err
	}

	fmt.Printf("Briefing written: %s (%d actions over %d days)\n", path, sum.TotalActions, days)
	return nil
}

func cleanupAudit(c *cli.Context) error {
	cfg, dirs, err := setup(c)
	if err != nil {
		return err
	}

	store := newAuditStore(cfg, dirs, newLogger())
	deleted, err := store.Cleanup()
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d expired audit container(s)\n", deleted)
	return nil
}
