// Package flags provides the command line flags shared by the commands.
package flags

import (
	"strings"

	"github.com/Darkness4/bili-auto-quality/autoquality"
	"github.com/Darkness4/bili-auto-quality/page/cdp"
	"github.com/Darkness4/bili-auto-quality/quality"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// QualityFlags binds the automation parameters to flags.
func QualityFlags(params *autoquality.Params) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:       "preference",
			Value:      autoquality.DefaultParams.Preference.String(),
			HasBeenSet: true,
			Category:   "Quality:",
			Usage: `Ordered list of qualities, most wanted first.
Available names: 240P, 360P, 480P, 720P, 720P60, 1080P, 1080P+, 1080P60, 4K, HDR, DOLBY, 8K, or a numeric code.`,
			EnvVars: []string{"BILI_PREFERENCE"},
			Action: func(_ *cli.Context, s string) error {
				p, err := quality.PreferenceParseString(s)
				if err != nil {
					log.Error().Str("preference", s).Err(err).Msg("invalid preference")
					return err
				}
				params.Preference = p
				return nil
			},
		},
		&cli.DurationFlag{
			Name:        "poll-interval",
			Value:       autoquality.DefaultParams.PollInterval,
			Category:    "Polling:",
			Usage:       "Delay between two attempts.",
			Destination: &params.PollInterval,
		},
		&cli.IntFlag{
			Name:        "max-attempts",
			Value:       autoquality.DefaultParams.MaxAttempts,
			Category:    "Polling:",
			Usage:       "Give up after this many attempts following the first one.",
			Destination: &params.MaxAttempts,
		},
		&cli.BoolFlag{
			Name:       "no-wait-ready",
			Value:      false,
			HasBeenSet: true,
			Category:   "Polling:",
			Usage:      "Don't wait for the document to be parsed before the first attempt.",
			Action: func(_ *cli.Context, b bool) error {
				params.WaitReady = !b
				return nil
			},
		},
		&cli.DurationFlag{
			Name:        "ready-timeout",
			Value:       autoquality.DefaultParams.ReadyTimeout,
			Category:    "Polling:",
			Usage:       "Start polling anyway if the document is not parsed after this delay.",
			Destination: &params.ReadyTimeout,
		},
		&cli.StringSliceFlag{
			Name:     "label",
			Category: "Quality:",
			Usage:    "Label attached to the state and the metrics, as key=value.",
			Action: func(_ *cli.Context, labels []string) error {
				params.Labels = ParseLabels(labels)
				return nil
			},
		},
	}
}

// BrowserFlags binds the browser configuration to flags.
func BrowserFlags(cfg *cdp.BrowserConfig) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:       "headful",
			Value:      false,
			HasBeenSet: true,
			Category:   "Browser:",
			Usage:      "Show the browser window.",
			Action: func(_ *cli.Context, b bool) error {
				cfg.Headless = !b
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "remote-url",
			Category:    "Browser:",
			Usage:       "Connect to a running browser (DevTools websocket or http URL) instead of starting one.",
			EnvVars:     []string{"BROWSER_REMOTE_URL"},
			Destination: &cfg.RemoteURL,
		},
		&cli.PathFlag{
			Name:        "exec-path",
			Category:    "Browser:",
			Usage:       "Path to the Chromium executable.",
			EnvVars:     []string{"BROWSER_EXEC_PATH"},
			Destination: &cfg.ExecPath,
		},
		&cli.PathFlag{
			Name:        "user-data-dir",
			Category:    "Browser:",
			Usage:       "Browser profile directory.",
			Destination: &cfg.UserDataDir,
		},
		&cli.StringFlag{
			Name:        "user-agent",
			Value:       cdp.DefaultUserAgent,
			Category:    "Browser:",
			Usage:       "User agent of the browser.",
			Destination: &cfg.UserAgent,
		},
		&cli.BoolFlag{
			Name:        "no-sandbox",
			Category:    "Browser:",
			Usage:       "Disable the Chromium sandbox (needed as root in containers).",
			EnvVars:     []string{"BROWSER_NO_SANDBOX"},
			Destination: &cfg.NoSandbox,
		},
	}
}

// ParseLabels parses key=value pairs. A pair without '=' gets an empty value.
func ParseLabels(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, _ := strings.Cut(pair, "=")
		labels[k] = v
	}
	return labels
}
