package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/appsync/internal/client/sync"
	"golang.org/x/sync/errgroup"
)

// Dev watches the source directory and pushes changed records until ctx is done. Only one
// dev session may run per project.
func (c *Client) Dev(ctx context.Context) error {
	if err := c.CheckScope(ctx, false); err != nil {
		return err
	}
	if _, err := c.manifest.Current(); err != nil {
		return err
	}

	if err := c.workspace.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := c.workspace.Unlock(); err != nil {
			slog.Warn("workspace unlock", "error", err)
		}
	}()

	if err := c.workspace.Setup(); err != nil {
		return err
	}

	watcher := sync.NewFileWatcher(c.workspace.SourceDir)
	watcher.FilterPaths(c.ignore.ShouldIgnore)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer watcher.Stop()

	resolve := func() (*sync.ContextResolver, error) {
		return c.resolver(c.workspace.SourceDir)
	}
	agg := sync.NewWatchAggregator(resolve, c.pusher(c.sourceBuilder()).Push)

	events := c.status.Subscribe()
	defer c.status.Unsubscribe(events)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		agg.Run(egCtx)
		return nil
	})

	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			case path, ok := <-watcher.Paths():
				if !ok {
					return nil
				}
				agg.Enqueue(path)
			}
		}
	})

	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				slog.Debug("record status", "record", ev.Key, "state", ev.Status.State, "retries", ev.Status.Retries)
			}
		}
	})

	slog.Info("dev mode started, watching for changes", "dir", c.workspace.SourceDir)

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("dev mode failure", "error", err)
		return err
	}

	slog.Info("dev mode stopped")
	return nil
}
