package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"metaphorspace/internal/chat"
	web "metaphorspace/internal/server"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the persistence worker and the JSON API",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Setup Signal Handling (Ctrl+C)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		// Setup Manual 'q' input handling
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if scanner.Text() == "q" {
					fmt.Println(" 'q' pressed. Stopping...")
					cancel()
					return
				}
			}
		}()

		go func() {
			select {
			case <-sigChan:
				logger.Info("Shutting down...")
				cancel()
			case <-ctx.Done():
			}
		}()

		fmt.Println("Press 'q' + Enter or Ctrl+C to stop.")
		if err := runServe(ctx); err != nil {
			logger.Fatal("Server stopped with error", zap.Error(err))
		}
		logger.Info("Goodbye!")
	},
}

// runServe owns everything serve opens and releases it before returning, so
// callers may exit on the returned error.
func runServe(ctx context.Context) error {
	resp, err := newResponder(ctx)
	if err != nil {
		return fmt.Errorf("init responder: %w", err)
	}

	// serve always owns BadgerDB
	a, err := newApp(ctx, false)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer a.close()

	chats := chat.NewRegistry(resp, logger, chatOptions()...)
	limiter := web.NewRateLimiter(cfg.Server.RPS, cfg.Server.Burst, logger)
	srv := web.NewServer(a.feed, chats, a.theme, limiter, logger)

	stop, err := startMaintenance([]job{
		{"@every 5m", func() {
			if err := a.store.CollectGarbage(); err != nil {
				logger.Warn("Badger GC failed", zap.Error(err))
			}
		}},
		{"@hourly", func() { limiter.Cleanup(10000) }},
	})
	if err != nil {
		return err
	}
	// Runs before a.close, so no job touches a closed store.
	defer stop()

	// Likes are only accepted once the stored set is in memory.
	a.feed.LoadLiked(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.feed.LoadNextPage(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	logger.Info("Server running.", zap.String("addr", cfg.Server.Addr))
	return g.Wait()
}

type job struct {
	spec string
	run  func()
}

// startMaintenance schedules jobs on a cron. The returned stop blocks until
// any running job has returned.
func startMaintenance(jobs []job) (func(), error) {
	c := cron.New()
	for _, j := range jobs {
		if _, err := c.AddFunc(j.spec, j.run); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", j.spec, err)
		}
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
