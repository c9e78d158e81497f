// Package autoquality sets the preferred resolution on a video page once per
// page load.
//
// Each attempt reads the qualities offered by the page, selects one by
// preference and asks the player to switch. Attempts are repeated by a poller
// until one is accepted or the retry budget runs out.
package autoquality

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Darkness4/bili-auto-quality/notify"
	"github.com/Darkness4/bili-auto-quality/notify/notifier"
	"github.com/Darkness4/bili-auto-quality/player"
	"github.com/Darkness4/bili-auto-quality/poller"
	"github.com/Darkness4/bili-auto-quality/quality"
	"github.com/Darkness4/bili-auto-quality/state"
	"github.com/Darkness4/bili-auto-quality/telemetry/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "autoquality"

// Component tags every log line emitted by the automation.
const Component = "BiliAutoQuality"

// Readiness reports when the host document has been parsed.
type Readiness interface {
	WaitReady(ctx context.Context, interval time.Duration) error
}

// Result is the outcome of a Run.
type Result struct {
	poller.Result
	// Quality is the applied code. Only set when the state is StateSucceeded.
	Quality quality.Quality `json:"quality"`
	// Description is the label of the applied code as published by the page.
	Description string `json:"description,omitempty"`
}

// AutoQuality binds a page to a preference.
type AutoQuality struct {
	src       quality.Source
	player    player.Player
	ready     Readiness
	params    *Params
	applier   *player.Applier
	scheduler poller.Scheduler
	name      string
	url       string
	log       zerolog.Logger
}

// Option configures an AutoQuality.
type Option func(*AutoQuality)

// WithReadiness gates the first attempt on document readiness.
//
// It only has an effect when Params.WaitReady is set.
func WithReadiness(r Readiness) Option {
	return func(a *AutoQuality) {
		a.ready = r
	}
}

// WithApplier overrides the player applier.
func WithApplier(applier *player.Applier) Option {
	return func(a *AutoQuality) {
		a.applier = applier
	}
}

// WithScheduler overrides the poller scheduler.
func WithScheduler(s poller.Scheduler) Option {
	return func(a *AutoQuality) {
		a.scheduler = s
	}
}

// WithName sets the name under which the state is recorded.
func WithName(name string) Option {
	return func(a *AutoQuality) {
		a.name = name
	}
}

// WithURL sets the URL of the page for logs and notifications.
func WithURL(url string) Option {
	return func(a *AutoQuality) {
		a.url = url
	}
}

// New creates an AutoQuality.
func New(src quality.Source, p player.Player, params *Params, opts ...Option) *AutoQuality {
	if src == nil {
		log.Panic().Msg("source is nil")
	}
	if params == nil {
		params = &DefaultParams
	}
	params = params.Clone()
	if params.PollInterval <= 0 {
		params.PollInterval = DefaultParams.PollInterval
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = DefaultParams.MaxAttempts
	}
	if len(params.Preference) == 0 {
		params.Preference = DefaultParams.Preference.Clone()
	}
	a := &AutoQuality{
		src:       src,
		player:    p,
		params:    params,
		scheduler: poller.RealScheduler{},
		name:      "default",
	}
	for _, o := range opts {
		o(a)
	}
	ctx := log.With().Str("component", Component)
	if a.url != "" {
		ctx = ctx.Str("url", a.url)
	}
	a.log = ctx.Logger()
	if a.applier == nil {
		a.applier = player.NewApplier(player.WithLogger(a.log))
	}
	return a
}

// TrySet runs one read, select and apply attempt.
//
// It returns true when a quality method accepted the request.
func (a *AutoQuality) TrySet(ctx context.Context) bool {
	_, _, ok := a.trySet(ctx)
	return ok
}

func (a *AutoQuality) trySet(ctx context.Context) (quality.Quality, string, bool) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "autoquality.TrySet")
	defer span.End()
	metrics.Poller.Attempts.Add(ctx, 1)

	available, err := quality.Read(ctx, a.src)
	if errors.Is(err, quality.ErrNoPlayInfo) {
		a.log.Warn().Msg("quality list not available yet")
		return quality.QualityUnknown, "", false
	}
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to read quality list")
		span.RecordError(err)
		state.DefaultState.SetPageError(a.name, err)
		return quality.QualityUnknown, "", false
	}
	a.log.Debug().Any("available", available.Codes).Msg("quality list")

	target := a.params.Preference.Select(available.Codes)
	if !slices.Contains(a.params.Preference, target) {
		a.log.Info().
			Stringer("quality", target).
			Msg("no preferred quality available, using the first offered")
		metrics.Selection.Fallbacks.Add(ctx, 1)
	}
	metrics.Selection.Selected.Add(
		ctx,
		1,
		metric.WithAttributes(attribute.String("quality", target.String())),
	)
	span.SetAttributes(attribute.Int("quality", int(target)))

	if !a.applier.Apply(ctx, a.player, target) {
		return target, "", false
	}

	description := available.Description(target)
	a.log.Info().
		Str("description", description).
		Int("code", int(target)).
		Msgf("quality set to %s (%d)", description, int(target))
	return target, description, true
}

// Run waits for the document, then polls TrySet until it succeeds or the
// retry budget runs out.
func (a *AutoQuality) Run(ctx context.Context) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "autoquality.Run", trace.WithAttributes(
		attribute.String("page", a.name),
		attribute.String("url", a.url),
	))
	defer span.End()

	a.log.Info().Any("params", a.params).Msg("auto quality started")
	setState := func(s poller.State) {
		state.DefaultState.SetPageState(
			a.name,
			s,
			state.WithLabels(a.params.Labels),
			state.WithExtra(map[string]any{"url": a.url}),
		)
	}
	setState(poller.StateIdle)

	end := metrics.TimeStartRecording(ctx, metrics.Poller.TimeToApply, time.Second)

	if a.params.WaitReady && a.ready != nil {
		readyCtx, cancel := context.WithTimeout(ctx, a.params.ReadyTimeout)
		err := a.ready.WaitReady(readyCtx, a.params.PollInterval)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				setState(poller.StateCanceled)
				return a.finish(ctx, span, Result{Result: poller.Result{State: poller.StateCanceled}})
			}
			a.log.Warn().Err(err).Msg("document not ready, polling anyway")
		}
	}

	var selected quality.Quality
	var description string
	p := poller.New(
		poller.Policy{
			Interval:    a.params.PollInterval,
			MaxAttempts: a.params.MaxAttempts,
		},
		poller.WithScheduler(a.scheduler),
		poller.WithLogger(a.log),
		poller.WithStateHook(setState),
	)
	res := p.Run(ctx, func(ctx context.Context) bool {
		q, d, ok := a.trySet(ctx)
		if ok {
			selected, description = q, d
		}
		return ok
	})

	if res.State == poller.StateSucceeded {
		end()
	}
	return a.finish(ctx, span, Result{
		Result:      res,
		Quality:     selected,
		Description: description,
	})
}

func (a *AutoQuality) finish(ctx context.Context, span trace.Span, res Result) Result {
	metrics.Poller.Runs.Add(
		ctx,
		1,
		metric.WithAttributes(attribute.String("state", res.State.String())),
	)
	span.SetAttributes(
		attribute.String("state", res.State.String()),
		attribute.Int("attempts", res.Attempts),
	)

	outcome := notify.PageOutcome{
		Page:        a.name,
		URL:         a.url,
		Code:        int(res.Quality),
		Description: res.Description,
		Attempts:    res.Attempts,
		Labels:      a.params.Labels,
	}
	// The page context is usually done at this point.
	nctx := context.WithoutCancel(ctx)
	var err error
	switch res.State {
	case poller.StateSucceeded:
		err = notifier.NotifyApplied(nctx, outcome)
	case poller.StateExhausted:
		span.SetStatus(codes.Error, "exhausted")
		err = notifier.NotifyExhausted(nctx, outcome)
	case poller.StateCanceled:
		err = notifier.NotifyCanceled(nctx, outcome)
	}
	if err != nil {
		a.log.Err(err).Msg("notify failed")
	}

	a.log.Info().
		Stringer("state", res.State).
		Int("attempts", res.Attempts).
		Msg("auto quality finished")
	return res
}
