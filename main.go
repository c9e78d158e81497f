package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Darkness4/bili-auto-quality/cmd/apply"
	"github.com/Darkness4/bili-auto-quality/cmd/simulate"
	"github.com/Darkness4/bili-auto-quality/cmd/watch"
	"github.com/Darkness4/bili-auto-quality/telemetry"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
)

var version = "dev"

var (
	debug     bool
	logJSON   bool
	otelDebug bool
	shutdown  func(context.Context) error
)

var app = &cli.App{
	Name:    "bili-auto-quality",
	Usage:   "Set the playback quality of Bilibili video pages automatically.",
	Version: version,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:        "debug",
			EnvVars:     []string{"DEBUG"},
			Value:       false,
			Destination: &debug,
			Usage:       "Enable debug logging.",
		},
		&cli.BoolFlag{
			Name:        "log-json",
			EnvVars:     []string{"LOG_JSON"},
			Value:       false,
			Destination: &logJSON,
			Usage:       "Write logs as JSON lines.",
		},
		&cli.BoolFlag{
			Name:        "otel",
			EnvVars:     []string{"OTEL_DEBUG"},
			Value:       false,
			Destination: &otelDebug,
			Usage:       "Print the traces and the metrics on stdout.",
		},
	},
	Suggest:              true,
	EnableBashCompletion: true,
	Commands: []*cli.Command{
		apply.Command,
		watch.Command,
		simulate.Command,
	},
	Before: func(cCtx *cli.Context) error {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		if !logJSON {
			log.Logger = log.Output(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.RFC3339,
			})
		}

		opts := []telemetry.Option{telemetry.WithService(cCtx.App.Name, version)}
		reader, err := otelprom.New()
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, telemetry.WithMetricReader(reader))
		if otelDebug {
			opts = append(opts, telemetry.WithStdout())
		}
		if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
			traceExporter, err := otlptracegrpc.New(cCtx.Context)
			if err != nil {
				return fmt.Errorf("failed to create trace exporter: %w", err)
			}
			metricExporter, err := otlpmetricgrpc.New(cCtx.Context)
			if err != nil {
				return fmt.Errorf("failed to create metric exporter: %w", err)
			}
			opts = append(
				opts,
				telemetry.WithTraceExporter(traceExporter),
				telemetry.WithMetricExporter(metricExporter),
			)
			log.Info().Msg("exporting telemetry with OTLP")
		}

		shutdown, err = telemetry.SetupOTELSDK(cCtx.Context, opts...)
		if err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		return nil
	},
	After: func(_ *cli.Context) error {
		if shutdown == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Err(err).Msg("failed to shutdown telemetry")
		}
		return nil
	},
}

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("app crashed")
	}
}
