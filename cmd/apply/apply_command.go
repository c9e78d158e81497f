// Package apply provides a command for setting the quality of one video page.
package apply

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Darkness4/bili-auto-quality/autoquality"
	"github.com/Darkness4/bili-auto-quality/cmd/flags"
	"github.com/Darkness4/bili-auto-quality/cookie"
	"github.com/Darkness4/bili-auto-quality/page"
	"github.com/Darkness4/bili-auto-quality/page/cdp"
	"github.com/Darkness4/bili-auto-quality/utils/try"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	applyParams   = autoquality.Params{}
	browserConfig = cdp.DefaultBrowserConfig
	cookiesFile   string
	maxTries      int
	keepOpen      bool
	linger        time.Duration
)

// Command is the command for setting the quality of one video page.
var Command = &cli.Command{
	Name:      "apply",
	Usage:     "Open a video page and set its quality.",
	ArgsUsage: "url",
	Flags: append(append([]cli.Flag{
		&cli.PathFlag{
			Name:        "cookies-file",
			Usage:       "Path to a cookies file. Format is a netscape cookies file.",
			Category:    "Browser:",
			EnvVars:     []string{"COOKIES_FILE"},
			Destination: &cookiesFile,
		},
		&cli.IntFlag{
			Name:        "max-tries",
			Value:       5,
			Category:    "Browser:",
			Usage:       "Navigation attempts before giving up.",
			Destination: &maxTries,
		},
		&cli.BoolFlag{
			Name:        "keep-open",
			Value:       false,
			Category:    "Browser:",
			Usage:       "Keep the browser open until interrupted.",
			Destination: &keepOpen,
		},
		&cli.DurationFlag{
			Name:        "linger",
			Value:       5 * time.Second,
			Category:    "Browser:",
			Usage:       "Time left to the player to report the outcome of the request before closing.",
			Destination: &linger,
		},
	}, flags.QualityFlags(&applyParams)...), flags.BrowserFlags(&browserConfig)...),
	Action: func(cCtx *cli.Context) error {
		ctx, cancel := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		url := cCtx.Args().Get(0)
		if url == "" {
			log.Error().Msg("url is empty")
			return errors.New("missing url")
		}
		logger := log.With().Str("component", autoquality.Component).Str("url", url).Logger()

		tabCtx, closeTab, err := cdp.NewTab(ctx, browserConfig)
		if err != nil {
			return err
		}
		defer closeTab()
		cdp.ListenConsole(tabCtx, logger)

		if cookiesFile != "" {
			cookies, err := cookie.ParseFromFile(cookiesFile)
			if err != nil {
				log.Error().Err(err).Msg("failed to load cookies, using unauthenticated")
			} else if err := cdp.InjectCookies(tabCtx, cookies); err != nil {
				log.Error().Err(err).Msg("failed to inject cookies, using unauthenticated")
			} else {
				log.Info().Int("count", len(cookies)).Msg("cookies injected")
			}
		}

		if err := try.DoExponentialBackoff(
			ctx,
			maxTries,
			time.Second,
			2,
			30*time.Second,
			func(context.Context) error {
				return cdp.Navigate(tabCtx, url)
			},
		); err != nil {
			log.Error().Err(err).Msg("failed to open the page")
			return err
		}

		pg := page.New(cdp.Evaluator{}, page.WithLogger(logger))
		aq := autoquality.New(
			pg,
			pg,
			&applyParams,
			autoquality.WithReadiness(pg),
			autoquality.WithName("apply"),
			autoquality.WithURL(url),
		)
		res := aq.Run(tabCtx)
		log.Info().Any("result", res).Msg("done")

		if keepOpen {
			log.Info().Msg("keeping the browser open, interrupt to exit")
			<-ctx.Done()
			return nil
		}
		select {
		case <-time.After(linger):
		case <-ctx.Done():
		}
		return nil
	},
}
