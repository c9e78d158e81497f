// Package simulate provides a command for replaying the automation against a
// scripted host page, without a browser.
package simulate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Darkness4/bili-auto-quality/autoquality"
	"github.com/Darkness4/bili-auto-quality/cmd/flags"
	"github.com/Darkness4/bili-auto-quality/page"
	"github.com/Darkness4/bili-auto-quality/page/jsvm"
	"github.com/Darkness4/bili-auto-quality/poller"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	simulateParams = autoquality.Params{}
	readyState     string
)

// Command is the command for replaying the automation against a fixture.
var Command = &cli.Command{
	Name:  "simulate",
	Usage: "Run the automation against a JavaScript fixture playing the video page.",
	Description: `The fixture runs in an embedded JavaScript runtime where window, document and console are defined.
It should publish window.__playinfo__ and window.player the way the site does.`,
	ArgsUsage: "fixture.js",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "ready-state",
			Category:    "Page:",
			Usage:       "Override document.readyState after loading the fixture (loading, interactive, complete).",
			Destination: &readyState,
		},
	}, flags.QualityFlags(&simulateParams)...),
	Action: func(cCtx *cli.Context) error {
		ctx, cancel := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fixture := cCtx.Args().Get(0)
		if fixture == "" {
			log.Error().Msg("fixture is empty")
			return errors.New("missing fixture")
		}
		script, err := os.ReadFile(fixture)
		if err != nil {
			return err
		}

		logger := log.With().Str("component", autoquality.Component).Logger()
		vm, err := jsvm.New(jsvm.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := vm.Load(filepath.Base(fixture), string(script)); err != nil {
			return err
		}
		if readyState != "" {
			if err := vm.SetReadyState(readyState); err != nil {
				return err
			}
		}

		pg := page.New(vm, page.WithLogger(logger))
		res := autoquality.New(
			pg,
			pg,
			&simulateParams,
			autoquality.WithReadiness(pg),
			autoquality.WithName("simulate"),
			autoquality.WithURL("file://"+fixture),
		).Run(ctx)

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if res.State != poller.StateSucceeded {
			return cli.Exit(fmt.Sprintf("quality was not set (%s)", res.State), 1)
		}
		return nil
	},
}
