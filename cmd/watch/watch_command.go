// Package watch provides a command for setting the quality of every video
// page opened in a browser session.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "net/http/pprof"

	_ "github.com/grafana/pyroscope-go/godeltaprof/http/pprof"

	"github.com/Darkness4/bili-auto-quality/autoquality"
	"github.com/Darkness4/bili-auto-quality/cookie"
	"github.com/Darkness4/bili-auto-quality/notify"
	"github.com/Darkness4/bili-auto-quality/notify/notifier"
	"github.com/Darkness4/bili-auto-quality/page"
	"github.com/Darkness4/bili-auto-quality/page/cdp"
	"github.com/Darkness4/bili-auto-quality/state"
	"github.com/Darkness4/bili-auto-quality/utils/try"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var (
	configPath          string
	statusListenAddress string
)

// Command is the command for watching a browser session.
var Command = &cli.Command{
	Name:  "watch",
	Usage: "Set the quality of every matching page opened in a browser session.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Required:    true,
			Usage:       `Config file path. (required)`,
			EnvVars:     []string{"CONFIG_PATH"},
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "status.listen-address",
			Aliases:     []string{"pprof.listen-address"},
			Value:       ":3000",
			Usage:       "Address serving the state, the metrics and the profiles.",
			EnvVars:     []string{"STATUS_LISTEN_ADDRESS"},
			Destination: &statusListenAddress,
		},
	},
	Action: func(cCtx *cli.Context) error {
		ctx, cancel := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		g, ctx := errgroup.WithContext(ctx)

		configChan := make(chan *Config)
		g.Go(func() error {
			ObserveConfig(ctx, configPath, configChan)
			return nil
		})

		srv := &http.Server{
			Addr:              statusListenAddress,
			Handler:           otelhttp.NewHandler(NewStatusHandler(), "status"),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("listenAddress", statusListenAddress).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			return ConfigReloader(ctx, configChan, handleConfig)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// NewStatusHandler serves the state on /, the metrics on /metrics and the
// profiles on /debug/pprof/.
func NewStatusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		s := state.DefaultState.ReadState()
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err = w.Write(b); err != nil {
			log.Err(err).Msg("failed to write state")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	return mux
}

func setupNotifier(config NotifierConfig) {
	var base notify.Notifier
	switch {
	case config.Enabled && len(config.URLs) > 0:
		n, err := notify.NewShoutrrrNotifier(config.URLs...)
		if err != nil {
			log.Error().Err(err).Msg("failed to setup notifier, notifications are disabled")
			base = notify.NewDummyNotifier()
			break
		}
		base = n
		log.Info().Msg("using shoutrrr")
	case config.Enabled && config.Gotify != nil && config.Gotify.Endpoint != "":
		base = notify.NewGoNotifier(
			&http.Client{
				Timeout:   10 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			config.Gotify.Endpoint,
			config.Gotify.Token,
		)
		log.Info().Str("endpoint", config.Gotify.Endpoint).Msg("using gotify")
	case config.Enabled:
		log.Warn().Msg("notifier enabled but there is no URLs nor gotify endpoint")
		base = notify.NewDummyNotifier()
	default:
		base = notify.NewDummyNotifier()
		log.Info().Msg("no notifier configured")
	}
	notifier.Notifier = notify.NewFormatedNotifier(base, config.NotificationFormats)
}

func handleConfig(ctx context.Context, config *Config) {
	setupNotifier(config.Notifier)
	if err := notifier.NotifyConfigReloaded(ctx); err != nil {
		log.Err(err).Msg("notify failed")
	}
	defer func() {
		if err := recover(); err != nil {
			log.Error().Any("panic", err).Msg("panicked")
			if err := notifier.NotifyPanicked(context.Background(), err); err != nil {
				log.Err(err).Msg("notify failed")
			}
			os.Exit(1)
		}
	}()

	params := autoquality.DefaultParams.Clone()
	config.DefaultParams.Override(params)

	browser := cdp.DefaultBrowserConfig
	if config.Browser != nil {
		browser = *config.Browser
	}

	for {
		err := handleSession(ctx, config, params, browser)
		if ctx.Err() != nil {
			log.Info().Msg("abort watching session")
			return
		}
		log.Error().Err(err).Msg("browser session ended, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// handleSession opens a tab and runs the automation on every matching
// navigation until the tab or ctx ends.
func handleSession(
	ctx context.Context,
	config *Config,
	params *autoquality.Params,
	browser cdp.BrowserConfig,
) error {
	tabCtx, closeTab, err := cdp.NewTab(ctx, browser)
	if err != nil {
		return err
	}
	defer closeTab()

	cdp.ListenConsole(tabCtx, log.With().Str("component", autoquality.Component).Logger())
	navigations := cdp.ListenNavigations(tabCtx)

	if config.CookiesFile != "" {
		cookies, err := cookie.ParseFromFile(config.CookiesFile)
		if err != nil {
			log.Error().Err(err).Msg("failed to load cookies, using unauthenticated")
		} else if err := try.Do(tabCtx, 3, time.Second, func(ctx context.Context) error {
			return cdp.InjectCookies(ctx, cookies)
		}); err != nil {
			log.Error().Err(err).Msg("failed to inject cookies, using unauthenticated")
		}
	}

	if config.StartURL != "" {
		if err := try.DoWithContextTimeout(
			tabCtx,
			5,
			time.Second,
			time.Minute,
			func(ctx context.Context, try int) error {
				log.Debug().Int("try", try).Str("url", config.StartURL).Msg("opening start URL")
				return cdp.Navigate(ctx, config.StartURL)
			},
		); err != nil {
			return fmt.Errorf("failed to open start URL: %w", err)
		}
	}

	var wg sync.WaitGroup
	cancelPage := func() {}
	defer func() {
		cancelPage()
		wg.Wait()
	}()

	for {
		select {
		case <-tabCtx.Done():
			return tabCtx.Err()
		case nav := <-navigations:
			// A new document replaces the previous one and its poller.
			cancelPage()
			cancelPage = func() {}

			rule, ok := config.MatchURL(nav.URL)
			if !ok {
				log.Debug().Str("url", nav.URL).Msg("no rule matches, skipping")
				continue
			}
			pageParams := params.Clone()
			rule.Params.Override(pageParams)

			pageCtx, cancel := context.WithCancel(tabCtx)
			cancelPage = cancel
			wg.Add(1)
			go func(url string, name string) {
				defer wg.Done()
				logger := log.With().
					Str("component", autoquality.Component).
					Str("rule", name).
					Str("url", url).
					Logger()
				pg := page.New(cdp.Evaluator{}, page.WithLogger(logger))
				autoquality.New(
					pg,
					pg,
					pageParams,
					autoquality.WithReadiness(pg),
					autoquality.WithName(name),
					autoquality.WithURL(url),
				).Run(pageCtx)
			}(nav.URL, rule.Name)
		}
	}
}
