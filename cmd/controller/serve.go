package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/codec"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/config"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/control"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/instruct"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/monitor"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/scorer"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/transport"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the controller server",
	Long: `Start the monitor loop and the HTTP/websocket server.

Settings come from defaults, FACILITATOR_CONFIG (YAML), the dotenv file and
the environment. With CODEC_ADDR empty the controller runs standalone with the
built-in lexical scorer and logs instruction updates instead of pushing them.

Without HOST_TOKEN any participant may send set_style. With HOST_TOKEN set,
every control message, set_style included, must carry a matching host_token
and is refused otherwise.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides FACILITATOR_ADDR")
}

// loadConfig applies the persistent flags on top of config.Load.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: os.Stderr,
		Pretty: cfg.LogPretty,
	})
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	log := logging.For("controller")

	// #region session
	sess, err := state.New(state.Options{
		ID:           cfg.SessionID,
		InitialStyle: cfg.InitialStyle,
		Window:       cfg.Window,
		Quiet:        cfg.Quiet,
		Override:     cfg.Override,
		Context:      cfg.Context,
	})
	if err != nil {
		return err
	}

	journal, err := logging.OpenJournal(cfg.DBPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	bus := event.NewBus(event.NewLogger(logging.For("bus")))
	defer bus.Close()
	// #endregion session

	// #region backend
	var (
		backend instruct.Backend = logBackend(logging.For("instruct"))
		drift   monitor.Scorer   = scorer.NewLexical()
		sinks                    = []monitor.Sink{monitor.PublishSink(bus)}
	)
	if cfg.CodecAddr != "" {
		client, err := codec.NewClient(cfg.CodecAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		backend = client
		drift = scorer.Fallback{Primary: client, Secondary: drift, Log: logging.For("scorer")}
		sinks = append(sinks, client)
		log.Info().Str("codec", cfg.CodecAddr).Msg("using moderator backend")
	} else {
		log.Warn().Msg("no CODEC_ADDR, running standalone")
	}
	// #endregion backend

	// #region wiring
	refresher := instruct.NewSynchronizer(instruct.Config{
		Debounce:     cfg.RefreshDebounce,
		Timeout:      cfg.RefreshTimeout,
		RetryBackoff: cfg.RefreshRetryBackoff,
	}, backend, sess, refreshRecorder(sess, journal, bus, log), logging.For("instruct"))
	defer refresher.Close()

	ctrl := control.New(sess, refresher, bus, journal, logging.For("control"))

	loop, err := monitor.NewLoop(monitor.Config{
		Interval:     cfg.TickInterval,
		ScoreTimeout: cfg.ScoreTimeout,
		EmitTimeout:  cfg.EmitTimeout,
	}, monitor.Deps{
		Session:   sess,
		Scorer:    drift,
		Sink:      monitor.FanOut(sinks...),
		Publisher: bus,
		Journal:   journal,
		Log:       logging.For("monitor"),
	})
	if err != nil {
		return err
	}

	tcfg := transport.DefaultConfig()
	tcfg.Addr = cfg.Addr
	tcfg.AllowedOrigins = cfg.AllowedOrigins
	srv := transport.New(tcfg, sess, guardControl(ctrl, cfg.HostToken, log), bus, logging.For("transport"))
	// #endregion wiring

	// Push the starting style before the first tick.
	refresher.Schedule(sess.Generation(), sess.Style(), sess.PromptContext())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", cfg.Addr).
			Str("session", sess.ID()).
			Str("style", string(sess.Style())).
			Dur("tick", cfg.TickInterval).
			Msg("controller listening")
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Err(err).Msg("controller stopped")
	return err
}

// logBackend stands in for the moderator when none is configured.
func logBackend(log zerolog.Logger) instruct.Backend {
	return instruct.BackendFunc(func(_ context.Context, gen uint64, st style.Style, text string) error {
		log.Info().
			Uint64("generation", gen).
			Str("style", string(st)).
			Int("bytes", len(text)).
			Msg("instructions updated")
		return nil
	})
}

// refreshRecorder journals and broadcasts every terminal refresh outcome.
func refreshRecorder(sess *state.Session, journal logging.Recorder, bus *event.Bus, log zerolog.Logger) instruct.OutcomeFunc {
	return func(o instruct.Outcome) {
		reason := o.Reason
		if reason == "" && o.Err != nil {
			reason = o.Err.Error()
		}
		err := journal.Record(logging.Entry{
			SessionID:  sess.ID(),
			Kind:       logging.KindRefresh,
			Style:      string(o.Style),
			Generation: o.Generation,
			Decision:   o.Phase.String(),
			Reason:     reason,
			CreatedAt:  o.At.UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("journal refresh outcome")
		}
		if err := bus.Publish(event.TopicRefresh, o); err != nil {
			log.Warn().Err(err).Msg("publish refresh outcome")
		}
		if o.Phase == instruct.Applied {
			if err := bus.Publish(event.TopicState, sess.Snapshot(o.At)); err != nil {
				log.Warn().Err(err).Msg("publish snapshot")
			}
		}
	}
}

// guardControl restricts control messages to host token holders when token
// is set and leaves them open to every participant otherwise.
func guardControl(ctrl control.Handler, token string, log zerolog.Logger) control.Handler {
	if token == "" {
		log.Info().Msg("control open to all participants")
		return ctrl
	}
	log.Info().Msg("HOST_TOKEN set, set_style restricted to token holders")
	return control.Guard(ctrl, control.RequireHostToken(token))
}
