package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"metaphorspace/internal/chat"
	"metaphorspace/internal/config"
	"metaphorspace/internal/feed"
	"metaphorspace/internal/model"
	"metaphorspace/internal/responder"
	"metaphorspace/internal/source"
	"metaphorspace/internal/store"
	"metaphorspace/internal/theme"
	"metaphorspace/internal/worker"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	v      *viper.Viper
	cfg    *config.Config
	client bool
)

var rootCmd = &cobra.Command{
	Use:   "metaphor",
	Short: "metaphor - browse, like and talk about metaphorspace stories",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v)
		return err
	},
}

// app bundles what every command needs. Commands other than serve run it in
// client mode when --client is set, so they don't fight serve for the
// Badger lock.
type app struct {
	store  *store.HybridStore
	writer *worker.Worker
	feed   *feed.Feed
	theme  *theme.Settings
	cancel context.CancelFunc
	done   chan struct{}
}

func newApp(ctx context.Context, clientMode bool) (*app, error) {
	badgerPath := cfg.Badger.Path
	if clientMode {
		badgerPath = ""
	}
	st, err := store.NewHybridStore(cfg.Redis.Addr, badgerPath, store.WithPageTTL(cfg.Cache.TTL))
	if err != nil {
		return nil, err
	}

	w := worker.NewWorker(st, logger, worker.WithRetry(cfg.Worker.MaxAttempts, cfg.Worker.Backoff))
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(wctx)
	}()

	src := source.NewCached(source.NewWordPress(cfg.Source.URL, cfg.Source.RPS, logger), st, logger)

	return &app{
		store:  st,
		writer: w,
		feed:   feed.New(src, st, w, cfg.Source.PerPage, logger),
		theme:  theme.New(cfg.Theme.Dark),
		cancel: cancel,
		done:   done,
	}, nil
}

// close waits for pending liked-set writes, stops the writer and closes the
// store.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.writer.Flush(ctx); err != nil {
		logger.Warn("Pending writes not flushed", zap.Error(err))
	}
	a.cancel()
	<-a.done
	a.store.Close()
}

// findStory loads pages until id shows up or maxPages have been read.
func (a *app) findStory(ctx context.Context, id, maxPages int) (model.Story, bool) {
	for {
		if st, ok := a.feed.Story(id); ok {
			return st, true
		}
		if a.feed.Cursor() > maxPages {
			return model.Story{}, false
		}
		a.feed.LoadNextPage(ctx)
	}
}

func newResponder(ctx context.Context) (responder.Responder, error) {
	if cfg.Gemini.APIKey == "" {
		logger.Warn("No Gemini API key configured; chat replies will fail")
		return unavailable{}, nil
	}
	return responder.NewGemini(ctx, responder.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		BaseURL: cfg.Gemini.BaseURL,
		RPS:     cfg.Gemini.RPS,
	}, logger)
}

func chatOptions() []chat.Option {
	return []chat.Option{
		chat.WithMaxContextRunes(cfg.Chat.MaxContext),
		chat.WithFallbacks(cfg.Chat.Apology, cfg.Chat.NoAnswer, cfg.Chat.ConnectionError),
	}
}

type unavailable struct{}

func (unavailable) Generate(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("gemini API key not configured: %w", responder.ErrRejected)
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid story id %q", arg)
	}
	return id, nil
}

func main() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	v = config.New()

	rootCmd.PersistentFlags().String("redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().String("badger", "", "Path to BadgerDB data directory (default ~/.metaphor/data)")
	rootCmd.PersistentFlags().BoolVar(&client, "client", false, "Keep preferences in Redis and leave BadgerDB closed")
	v.BindPFlag("redis.addr", rootCmd.PersistentFlags().Lookup("redis"))
	v.BindPFlag("badger.path", rootCmd.PersistentFlags().Lookup("badger"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(likedCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(themeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
