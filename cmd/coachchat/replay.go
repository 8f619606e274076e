package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/coachchat/pkg/config"
	"github.com/go-go-golems/coachchat/pkg/delivery"
	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/sem"
	"github.com/go-go-golems/coachchat/pkg/session"
)

const (
	formatPretty  = "pretty"
	formatEffects = "effects"
)

type replayOptions struct {
	format   string
	width    int
	realtime bool
	fast     bool
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <fixture.yaml>",
		Short: "Replay a scripted conversation and print the resulting chat",
		Long: "Replay hydrates the stored messages of a fixture, initializes the chat, " +
			"presents the live messages and prints either the final transcript or every emitted effect.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			f, err := loadFixture(args[0])
			if err != nil {
				return err
			}
			return runReplay(cmd.Context(), cmd.OutOrStdout(), cfg, f, opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", formatPretty, "Output format: pretty or effects")
	cmd.Flags().IntVar(&opts.width, "width", 80, "Transcript width for pretty output")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "Sleep through typing delays instead of skipping them")
	cmd.Flags().BoolVar(&opts.fast, "fast", false, "Use the fast-mode typing delays")
	return cmd
}

func runReplay(ctx context.Context, w io.Writer, cfg *config.Config, f *fixture, opts *replayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.format != formatPretty && opts.format != formatEffects {
		return errors.Errorf("unknown --format %q", opts.format)
	}
	if opts.fast {
		cfg.TypingIndicator.FastMode = true
	}

	hydrated, err := decodeMessages(f.Hydrated)
	if err != nil {
		return err
	}
	incoming, err := decodeMessages(f.Live)
	if err != nil {
		return err
	}

	var (
		clock  delivery.Clock = delivery.RealClock()
		manual *delivery.ManualClock
	)
	if !opts.realtime {
		start := time.Now()
		if f.Now != 0 {
			start = time.UnixMilli(f.Now)
		}
		manual = delivery.NewManualClock(start)
		clock = manual
	}

	stores, err := session.OpenStores(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	rec := effects.NewRecorder()
	s, err := session.New(cfg, stores, session.WithClock(clock), session.WithSink(rec))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Hydrate(ctx, hydrated); err != nil {
		return err
	}
	if err := s.Initialize(ctx, true); err != nil {
		return err
	}
	for i := 0; i < f.LoadEarlier; i++ {
		if err := s.LoadEarlier(ctx); err != nil {
			return err
		}
	}
	live := 0
	for _, m := range incoming {
		if manual != nil {
			manual.Advance(f.LiveGap)
		}
		if _, err := s.Ingest(ctx, m); err != nil {
			return err
		}
		n, err := s.Drain(ctx)
		if err != nil {
			return err
		}
		live += n
	}
	for _, ev := range f.WebViewEvents {
		if err := s.HandleWebViewEvent(ctx, ev); err != nil {
			log.Warn().Str("component", "replay").Str("event", ev).Err(err).Msg("skipping web view event")
		}
	}
	log.Debug().
		Str("component", "replay").
		Int("hydrated", len(hydrated)).
		Int("live", live).
		Int("effects", rec.Len()).
		Msg("replay finished")

	if opts.format == formatEffects {
		for _, e := range rec.Effects() {
			for _, frame := range sem.Frames(e) {
				if _, err := fmt.Fprintln(w, string(frame)); err != nil {
					return err
				}
			}
		}
		return nil
	}

	shown, err := s.Chat().List(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, renderTranscript(shown, opts.width))
	return err
}
