package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"recvault/internal/bootstrap"
	capturedto "recvault/internal/modules/capture/dto"
	lifecycleinadapter "recvault/internal/modules/lifecycle/adapter/in"
	"recvault/internal/platform/config"
	apperrors "recvault/internal/platform/errors"
	"recvault/internal/platform/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configFile string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "recvault",
		Short:         "Crash-safe audio capture with guaranteed delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "directory for the local catalog and exports")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug|info|warn|error (overrides config)")

	root.AddCommand(newRecordCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newSessionsCmd(flags))
	root.AddCommand(newRecoverCmd(flags))
	root.AddCommand(newPurgeCmd(flags))
	root.AddCommand(newHealthCmd(flags))
	return root
}

// loadApp resolves config, builds the logger and wires the app. The returned
// func releases both.
func loadApp(ctx context.Context, flags *globalFlags) (*bootstrap.App, func(), error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: flags.configFile, DataDir: flags.dataDir})
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	logger, flush, err := logging.New(logging.Options{Name: "recvault", Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		flush()
		return nil, nil, err
	}
	return app, func() {
		if err := app.Close(); err != nil {
			logger.Warnw("close catalog", "error", err)
		}
		flush()
	}, nil
}

func notifySignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, lifecycleinadapter.Signals()...)
	return ch, func() { signal.Stop(ch) }
}

// settle waits for capture hand-off and delivery to finish. An interrupt or
// the timeout cuts the wait short.
func settle(ctx context.Context, app *bootstrap.App, timeout time.Duration, interrupts <-chan os.Signal) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	if err := app.CaptureCLI.Drain(waitCtx); err != nil {
		return err
	}
	return app.Drain(waitCtx)
}

func reportShelved(w io.Writer, ids []string) {
	if len(ids) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "%d session(s) kept for later delivery: %s\n", len(ids), strings.Join(ids, ", "))
	_, _ = fmt.Fprintln(w, "run `recvault recover list` to inspect them")
}

func newRecordCmd(flags *globalFlags) *cobra.Command {
	var (
		file          string
		label         string
		chunkSize     int
		requireOnline bool
		wait          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture audio from stdin or a file and deliver it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var input io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}

			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if requireOnline && !app.CheckEndpoint(cmd.Context()) {
				return fmt.Errorf("processing endpoint %s is unreachable: %w", app.Config.Delivery.Endpoint, apperrors.ErrGateClosed)
			}
			if chunkSize <= 0 {
				chunkSize = app.Config.Capture.ChunkSize
			}

			interrupts, stopSignals := notifySignals()
			defer stopSignals()

			runCtx, cancelRun := context.WithCancel(context.WithoutCancel(cmd.Context()))
			defer cancelRun()
			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error { return app.Run(gctx) })

			recordCtx, stopRecording := context.WithCancel(gctx)
			outcome := make(chan lifecycleinadapter.Outcome, 1)
			go func() {
				out := app.Signals.Run(recordCtx, interrupts)
				stopRecording()
				outcome <- out
			}()

			errOut := cmd.ErrOrStderr()
			session, recErr := app.CaptureCLI.Record(recordCtx, label, input, chunkSize, func(a capturedto.AppendOutput) {
				_, _ = fmt.Fprintf(errOut, "\rchunk %d  %d bytes", a.Sequence, a.TotalBytes)
			})
			stopRecording()
			if got := <-outcome; got == lifecycleinadapter.OutcomeForced {
				_, _ = fmt.Fprintln(errOut, "\nforced stop")
			}
			if session.ID != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nrecorded %s: %d chunks, %d bytes\n", session.ID, session.ChunkCount, session.TotalBytes)
			}

			if err := settle(runCtx, app, wait, interrupts); err != nil {
				_, _ = fmt.Fprintf(errOut, "delivery not finished: %v\n", err)
			}
			cancelRun()
			if err := g.Wait(); err != nil {
				return err
			}
			reportShelved(errOut, app.Shelve(context.Background()))
			return recErr
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read audio from this file instead of stdin")
	cmd.Flags().StringVar(&label, "label", "", "session label")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "bytes per chunk (default from config)")
	cmd.Flags().BoolVar(&requireOnline, "require-online", false, "refuse to start when the endpoint is unreachable")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for delivery after capture ends")
	return cmd
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		listen string
		drain  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket capture surface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			if listen == "" {
				listen = app.Config.Server.Listen
			}

			interrupts, stopSignals := notifySignals()
			defer stopSignals()

			runCtx, cancelRun := context.WithCancel(context.WithoutCancel(cmd.Context()))
			defer cancelRun()
			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error { return app.Serve(gctx, listen, drain) })

			outcome := app.Signals.Run(gctx, interrupts)
			errOut := cmd.ErrOrStderr()
			_, _ = fmt.Fprintf(errOut, "shutting down (%s)\n", outcome)

			if session, stopped, err := app.CaptureCLI.Stop(context.Background()); err != nil {
				_, _ = fmt.Fprintf(errOut, "stop active session: %v\n", err)
			} else if stopped {
				_, _ = fmt.Fprintf(errOut, "stopped session %s (%d chunks)\n", session.ID, session.ChunkCount)
			}
			if err := settle(runCtx, app, drain, interrupts); err != nil {
				_, _ = fmt.Fprintf(errOut, "delivery not finished: %v\n", err)
			}
			cancelRun()
			err = g.Wait()
			reportShelved(errOut, app.Shelve(context.Background()))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	cmd.Flags().DurationVar(&drain, "drain-timeout", 10*time.Second, "how long to wait for deliveries on shutdown")
	return cmd
}

func newSessionsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List every session in the local catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			sessions, err := app.CatalogCLI.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			for _, s := range sessions {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d chunks\t%d bytes\tpayload=%d\t%q\n",
					s.ID, s.Status, s.StartTime.Local().Format(time.RFC3339), s.ChunkCount, s.TotalBytes, s.PayloadBytes, s.Label)
			}
			return nil
		},
	}
}

func newRecoverCmd(flags *globalFlags) *cobra.Command {
	recoverCmd := &cobra.Command{Use: "recover", Short: "Inspect and act on undelivered recordings"}

	recoverCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List undelivered sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			items, err := app.RecoveryCLI.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing to recover")
				return nil
			}
			for _, s := range items {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d chunks\trecoverable=%t", s.ID, s.Status, s.StartTime.Local().Format(time.RFC3339), s.ChunkCount, s.Recoverable)
				if s.Recoverable {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\tsource=%s\tbytes=%d", s.Source, s.PayloadBytes)
				}
				if s.PartialLoss {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\tmissing=%v", s.MissingSequences)
				}
				if s.Exported {
					_, _ = fmt.Fprint(cmd.OutOrStdout(), "\texported")
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	})

	var wait time.Duration
	resumeCmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Queue a recovered session for delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			out, err := app.RecoveryCLI.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !out.Queued {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s not queued: %s\n", out.SessionID, out.Reason)
				return nil
			}

			interrupts, stopSignals := notifySignals()
			defer stopSignals()
			runCtx, cancelRun := context.WithCancel(context.WithoutCancel(cmd.Context()))
			defer cancelRun()
			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error { return app.Run(gctx) })

			settleErr := settle(runCtx, app, wait, interrupts)
			cancelRun()
			if err := g.Wait(); err != nil {
				return err
			}
			shelved := app.Shelve(context.Background())
			stats := app.Stats()
			switch {
			case settleErr != nil:
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "delivery not finished: %v\n", settleErr)
			case stats.Delivered > 0:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "delivered %s\n", out.SessionID)
			default:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "delivery of %s failed; it stays recoverable\n", out.SessionID)
			}
			reportShelved(cmd.ErrOrStderr(), shelved)
			return nil
		},
	}
	resumeCmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for delivery")
	recoverCmd.AddCommand(resumeCmd)

	var format, dir string
	exportCmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a recovered session to a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			if dir == "" {
				dir = app.Config.ExportDir
			}
			path, err := app.RecoveryCLI.ExportTo(cmd.Context(), args[0], format, dir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&format, "format", "webm", "webm|wav")
	exportCmd.Flags().StringVar(&dir, "dir", "", "output directory (default from config)")
	recoverCmd.AddCommand(exportCmd)

	recoverCmd.AddCommand(&cobra.Command{
		Use:   "discard <session-id>",
		Short: "Delete a session and its kept audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			out, err := app.RecoveryCLI.Discard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !out.Removed {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s not found\n", out.SessionID)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "discarded %s\n", out.SessionID)
			return nil
		},
	})

	recoverCmd.AddCommand(&cobra.Command{
		Use:   "tui",
		Short: "Pick recordings to resume, export or discard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()

			runCtx, cancelRun := context.WithCancel(context.WithoutCancel(cmd.Context()))
			defer cancelRun()
			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error { return app.Run(gctx) })

			tuiErr := bootstrap.RunTUI(app)
			if err := settle(runCtx, app, 30*time.Second, nil); err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "delivery not finished: %v\n", err)
			}
			cancelRun()
			if err := g.Wait(); err != nil {
				return err
			}
			reportShelved(cmd.ErrOrStderr(), app.Shelve(context.Background()))
			return tuiErr
		},
	})
	return recoverCmd
}

func newPurgeCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every local backup, delivered or not",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("purge drops undelivered audio too; pass --yes to confirm")
			}
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.CatalogCLI.Purge(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "local backups cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the processing endpoint once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer cleanup()
			if !app.CheckEndpoint(cmd.Context()) {
				return fmt.Errorf("%s is unreachable: %w", app.Config.Delivery.Endpoint, apperrors.ErrGateClosed)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is reachable\n", app.Config.Delivery.Endpoint)
			return nil
		},
	}
}
