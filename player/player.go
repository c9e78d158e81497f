// Package player applies a resolution to a host-managed video player.
//
// The player object belongs to the page and its surface is not known in
// advance. The Applier probes a priority-ordered list of capabilities and uses
// the first one that accepts the request.
package player

import (
	"context"
	"errors"

	"github.com/Darkness4/bili-auto-quality/quality"
	"github.com/Darkness4/bili-auto-quality/telemetry/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMethodNotFound is returned when the player does not expose the method.
var ErrMethodNotFound = errors.New("method not found")

// Player is the externally managed player control object.
type Player interface {
	// Present returns false when the page has no player object (yet).
	Present(ctx context.Context) (bool, error)
	// Has returns true if the player exposes a callable method with this name.
	Has(ctx context.Context, method string) (bool, error)
	// Call invokes a synchronous single argument setter.
	Call(ctx context.Context, method string, q quality.Quality) error
	// Request invokes an asynchronous method. The returned channel receives
	// the outcome of the request once and is then closed.
	Request(ctx context.Context, method string, q quality.Quality) (<-chan error, error)
	// SupportedQualities returns the player's own list of supported tiers.
	// ErrMethodNotFound is returned when the player cannot be queried.
	SupportedQualities(ctx context.Context) ([]quality.Quality, error)
}

// Capability is one way of changing the active resolution.
type Capability interface {
	Method() string
	Apply(ctx context.Context, p Player, q quality.Quality, logger zerolog.Logger) error
}

// DefaultCapabilities lists the known quality methods by priority.
//
// requestQuality is the current web player API. setQuality and
// setPlaybackQuality are kept for older player builds.
var DefaultCapabilities = []Capability{
	Request("requestQuality"),
	Setter("setQuality"),
	Setter("setPlaybackQuality"),
}

type requestCapability struct {
	method string
}

// Request returns an asynchronous capability.
//
// The request is accepted as soon as the invocation does not throw. Its
// outcome is only logged.
func Request(method string) Capability {
	return &requestCapability{method: method}
}

func (c *requestCapability) Method() string {
	return c.method
}

func (c *requestCapability) Apply(
	ctx context.Context,
	p Player,
	q quality.Quality,
	logger zerolog.Logger,
) error {
	outcome, err := p.Request(ctx, c.method, q)
	if err != nil {
		return err
	}
	go func() {
		select {
		case err, ok := <-outcome:
			if !ok || err == nil {
				logger.Info().Str("method", c.method).Stringer("quality", q).Msg("quality set")
				recordOutcome(context.Background(), c.method, "resolved")
				return
			}
			logger.Warn().Err(err).Str("method", c.method).Msg("quality request rejected")
			recordOutcome(context.Background(), c.method, "rejected")
		case <-ctx.Done():
		}
	}()
	return nil
}

type setterCapability struct {
	method string
}

// Setter returns a synchronous single argument capability.
func Setter(method string) Capability {
	return &setterCapability{method: method}
}

func (c *setterCapability) Method() string {
	return c.method
}

func (c *setterCapability) Apply(
	ctx context.Context,
	p Player,
	q quality.Quality,
	logger zerolog.Logger,
) error {
	if err := p.Call(ctx, c.method, q); err != nil {
		return err
	}
	logger.Info().Str("method", c.method).Stringer("quality", q).Msg("quality set")
	return nil
}

// Applier tries capabilities in order until one accepts the request.
type Applier struct {
	capabilities []Capability
	log          zerolog.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithCapabilities overrides the ordered capability list.
func WithCapabilities(capabilities ...Capability) Option {
	return func(a *Applier) {
		a.capabilities = capabilities
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Applier) {
		a.log = logger
	}
}

// NewApplier creates an Applier using DefaultCapabilities.
func NewApplier(opts ...Option) *Applier {
	a := &Applier{
		capabilities: DefaultCapabilities,
		log:          log.Logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Apply changes the player resolution to q.
//
// It never fails loudly: every error is logged and the result is false when
// no capability accepted the request.
func (a *Applier) Apply(ctx context.Context, p Player, q quality.Quality) bool {
	if p == nil {
		return false
	}
	present, err := p.Present(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to probe player")
		return false
	}
	if !present {
		return false
	}

	if supported, err := p.SupportedQualities(ctx); err == nil {
		a.log.Info().Any("supported", supported).Msg("player supported qualities")
	} else if !errors.Is(err, ErrMethodNotFound) {
		a.log.Debug().Err(err).Msg("failed to list supported qualities")
	}

	for _, c := range a.capabilities {
		logger := a.log.With().Str("method", c.Method()).Logger()
		ok, err := p.Has(ctx, c.Method())
		if err != nil {
			logger.Warn().Err(err).Msg("failed to probe method")
			continue
		}
		if !ok {
			continue
		}
		if err := c.Apply(ctx, p, q, a.log); err != nil {
			logger.Warn().Err(err).Msg("quality method failed")
			recordOutcome(ctx, c.Method(), "failed")
			continue
		}
		recordOutcome(ctx, c.Method(), "accepted")
		return true
	}

	a.log.Warn().Msg("no usable quality method found")
	return false
}

func recordOutcome(ctx context.Context, method string, outcome string) {
	metrics.Player.Invocations.Add(
		ctx,
		1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("outcome", outcome),
		),
	)
}

