package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"framesel/internal/docwatch"
	"framesel/internal/eventloop"
	"framesel/internal/logging"
	"framesel/internal/preflight"
	"framesel/internal/registry"
	"framesel/internal/session"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var forcePoll bool
	var once bool

	cmd := &cobra.Command{
		Use:   "watch <document.kra>",
		Short: "Re-sync registered frames and evict stale thumbnails whenever a document is saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}

			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
				for _, r := range failed {
					fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(r.Name, statusError, r.Detail, false))
				}
				return fmt.Errorf("%d preflight checks failed; run `framesel doctor`", len(failed))
			}

			lock, err := ctx.acquireLock("watch")
			if err != nil {
				return err
			}
			defer lock.Unlock()

			baseLogger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			sessionID := uuid.NewString()
			logger := logging.WithSessionLogger(baseLogger, sessionID)

			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			store, err := registry.Open(cfg)
			if err != nil {
				return fmt.Errorf("open registry: %w", err)
			}
			defer store.Close()

			s := session.New(path, cache, nil,
				session.WithRegistry(store),
				session.WithParseOptions(ctx.parseOptions()...),
				session.WithLogger(logger),
			)
			defer s.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithCancel(logging.WithSessionID(runCtx, sessionID))
			defer cancel()

			loop := eventloop.New(logger)
			refresh := func() {
				result, err := s.Refresh(runCtx)
				if err != nil {
					logging.ErrorWithContext(logger, "refresh failed", "refresh_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check the registry database with `framesel doctor`"),
					)
					if once {
						cancel()
					}
					return
				}
				printRefreshResult(cmd, result)
				if once {
					cancel()
				}
			}
			loop.Post(refresh)

			if !once {
				watcher, err := docwatch.New(path,
					docwatch.WithForcePoll(forcePoll),
					docwatch.WithLogger(logger),
					docwatch.WithOnChange(func() { loop.Post(refresh) }),
					docwatch.WithOnError(func(err error) {
						logging.WarnWithContext(logger, "document watch error", "watch_error",
							logging.Error(err),
							logging.String(logging.FieldErrorHint, "the document may have been moved or deleted"),
							logging.String(logging.FieldImpact, "saves are not picked up until the file reappears"),
						)
					}),
				)
				if err != nil {
					return err
				}
				if err := watcher.Start(); err != nil {
					return fmt.Errorf("start watcher: %w", err)
				}
				defer watcher.Stop()
				logger.Info("watching document", logging.String("path", path), logging.Bool("polling", watcher.IsPolling()))
			}

			if err := loop.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&forcePoll, "poll", false, "Poll the document instead of using filesystem events")
	cmd.Flags().BoolVar(&once, "once", false, "Sync once and exit")
	return cmd
}
