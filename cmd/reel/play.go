package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/justchokingaround/reel/internal/account"
	"github.com/justchokingaround/reel/internal/catalog"
	"github.com/justchokingaround/reel/internal/checkpoint"
	"github.com/justchokingaround/reel/internal/clipboard"
	"github.com/justchokingaround/reel/internal/hls"
	"github.com/justchokingaround/reel/internal/playback"
	"github.com/justchokingaround/reel/internal/player/mpv"
	"github.com/justchokingaround/reel/internal/tui"
)

var errSubscriptionRequired = errors.New("this title is a subscriber original")

var playCmd = &cobra.Command{
	Use:   "play <title-or-id>",
	Short: "Play a title, resuming where you left off",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().StringP("episode", "e", "", "episode id (default: first episode of a series)")
	playCmd.Flags().Bool("autoplay", true, "start playback as soon as the stream is ready")
	playCmd.Flags().BoolP("fullscreen", "f", false, "enter fullscreen once the first frame is available")
}

func runPlay(cmd *cobra.Command, args []string) error {
	episodeID, _ := cmd.Flags().GetString("episode")
	autoplay, _ := cmd.Flags().GetBool("autoplay")
	fullscreen, _ := cmd.Flags().GetBool("fullscreen")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	catalogRepo := catalog.NewRepository(db)
	content, err := catalogRepo.FindByTitle(ctx, args[0])
	if err != nil {
		return err
	}

	tier, err := account.NewRepository(db).TierFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up subscription: %w", err)
	}
	if !catalog.CanWatch(tier, content) {
		return fmt.Errorf("%w: %s", errSubscriptionRequired, content.Title)
	}

	url, duration, ep, err := content.Source(episodeID)
	if err != nil {
		return err
	}

	policy, err := checkpoint.ParseCompletionPolicy(cfg.Checkpoint.CompletionPolicy)
	if err != nil {
		return err
	}
	store := checkpoint.NewGormStore(db, policy)

	key := checkpoint.Key{UserID: userID, ContentID: content.ID}
	if ep != nil {
		key.EpisodeID = ep.ID
	}
	offset, err := checkpoint.ResumeOffset(ctx, store, key)
	if err != nil {
		logger.Warn("failed to read resume position", "key", key.String(), "error", err)
	}

	writer := checkpoint.NewWriter(store, checkpoint.WriterOptions{
		Timeout: cfg.Checkpoint.WriteTimeout,
		Logger:  logger,
	})
	defer writer.Close()

	surface, err := mpv.New(mpv.Options{
		Executable:     cfg.Player.MPVPath,
		NativeHLS:      cfg.Player.NativeHLS,
		LoadUserConfig: cfg.Player.LoadUserConfig,
		Debug:          cfg.HLS.Debug,
		PollInterval:   cfg.Player.PollInterval,
		Headers:        cfg.HLS.Headers,
		Referer:        cfg.HLS.Referer,
		UserAgent:      cfg.HLS.UserAgent,
		Title:          content.Title,
		ExtraArgs:      cfg.Player.ExtraArgs,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := surface.Close(); err != nil {
			logger.Debug("failed to stop mpv", "error", err)
		}
	}()

	client := hls.NewClient(hls.ClientConfig{
		Timeout:   cfg.HLS.Timeout,
		UserAgent: cfg.HLS.UserAgent,
		Headers:   hlsHeaders(),
		Debug:     cfg.HLS.Debug,
		Logger:    logger,
	})

	bridge := tui.NewBridge()
	defer bridge.Close()

	session := playback.NewSession(surface, playback.Options{
		Logger: logger,
		Writer: writer,
		Tier:   tier,
		NewDemuxer: func() playback.Demuxer {
			return hls.NewDemuxer(client, logger)
		},
		SettleDelay:       cfg.Player.SettleDelay,
		FullscreenTimeout: cfg.Player.FullscreenTimeout,
		Volume:            cfg.Player.Volume,
		OnChange:          bridge.Publish,
		OnError: func(err error) {
			logger.Error("playback failed", "content", content.ID, "error", err)
		},
	})
	defer session.Close()

	logger.Info("starting playback",
		"content", content.ID,
		"episode", key.EpisodeID,
		"tier", tier,
		"resume", offset,
	)

	intent := playback.FullscreenIntent{Autoplay: autoplay, Fullscreen: fullscreen}
	err = session.Load(ctx, playback.Source{
		URL:         url,
		StartOffset: offset,
		Autoplay:    intent.Autoplay,
		Key:         key,
		Duration:    duration,
	})
	if err != nil {
		return err
	}
	if err := session.StartIntent(ctx, intent); err != nil {
		return err
	}

	// Picking another episode starts it from the beginning
	resolve := func(ctx context.Context, e catalog.Episode) (playback.Source, error) {
		k := key
		k.EpisodeID = e.ID
		return playback.Source{URL: e.VideoURL, Autoplay: true, Key: k, Duration: e.Duration}, nil
	}

	return tui.Run(ctx, tui.Options{
		Content:    content,
		Episode:    episodeIndex(content, ep),
		Controller: session,
		Resolve:    resolve,
		Clipboard:  clipboard.NewService(cfg.Clipboard.Command, logger),
		Bridge:     bridge,
		Logger:     logger,
	})
}

// hlsHeaders merges the configured referer into the extra headers
func hlsHeaders() map[string]string {
	headers := make(map[string]string, len(cfg.HLS.Headers)+1)
	for k, v := range cfg.HLS.Headers {
		headers[k] = v
	}
	if cfg.HLS.Referer != "" {
		headers["Referer"] = cfg.HLS.Referer
	}
	return headers
}

func episodeIndex(c *catalog.Content, ep *catalog.Episode) int {
	if ep == nil {
		return 0
	}
	for i, e := range c.SortedEpisodes() {
		if e.ID == ep.ID {
			return i
		}
	}
	return 0
}
