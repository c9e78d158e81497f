// Package page bridges the automation to a host page through JavaScript
// evaluation.
//
// The same Page runs against a real browser tab (page/cdp) or an in-process
// JavaScript runtime playing the host page (page/jsvm).
package page

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Darkness4/bili-auto-quality/player"
	"github.com/Darkness4/bili-auto-quality/quality"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrHostException is wrapped when the host page threw during a call.
var ErrHostException = errors.New("host exception")

// Evaluator evaluates JavaScript expressions inside the host page.
//
// The result of the expression is JSON-decoded into res.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, res any) error
	// Await is like Evaluate but settles the resulting promise first. A
	// rejected promise is returned as an error.
	Await(ctx context.Context, expr string, res any) error
}

// Page implements quality.Source and player.Player over an Evaluator.
type Page struct {
	ev   Evaluator
	log  zerolog.Logger
	slot atomic.Uint64
}

var (
	_ quality.Source = (*Page)(nil)
	_ player.Player  = (*Page)(nil)
)

// Option configures a Page.
type Option func(*Page)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Page) {
		p.log = logger
	}
}

// New creates a Page.
func New(ev Evaluator, opts ...Option) *Page {
	if ev == nil {
		log.Panic().Msg("evaluator is nil")
	}
	p := &Page{
		ev:  ev,
		log: log.Logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type callResult struct {
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

func (r *callResult) err(method string) error {
	if !r.Found {
		return player.ErrMethodNotFound
	}
	if r.Error != "" {
		return fmt.Errorf("%w: %s: %s", ErrHostException, method, r.Error)
	}
	return nil
}

// PlayInfo implements quality.Source.
func (p *Page) PlayInfo(ctx context.Context) (*quality.PlayInfo, error) {
	var info quality.PlayInfo
	if err := p.ev.Evaluate(ctx, playInfoJS, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Present implements player.Player.
func (p *Page) Present(ctx context.Context) (bool, error) {
	var res callResult
	if err := p.ev.Evaluate(ctx, playerPresentJS, &res); err != nil {
		return false, err
	}
	return res.Found, nil
}

// Has implements player.Player.
func (p *Page) Has(ctx context.Context, method string) (bool, error) {
	var res callResult
	if err := p.ev.Evaluate(ctx, hasMethodJS(method), &res); err != nil {
		return false, err
	}
	return res.Found, nil
}

// Call implements player.Player.
func (p *Page) Call(ctx context.Context, method string, q quality.Quality) error {
	var res callResult
	if err := p.ev.Evaluate(ctx, callJS(method, int(q)), &res); err != nil {
		return err
	}
	return res.err(method)
}

// Request implements player.Player.
//
// The outcome is awaited in the background and delivered on the returned
// channel. The channel is closed without a value if ctx ends first.
func (p *Page) Request(
	ctx context.Context,
	method string,
	q quality.Quality,
) (<-chan error, error) {
	slot := strconv.FormatUint(p.slot.Add(1), 10)
	var res callResult
	if err := p.ev.Evaluate(ctx, requestJS(method, int(q), slot), &res); err != nil {
		return nil, err
	}
	if err := res.err(method); err != nil {
		return nil, err
	}

	out := make(chan error, 1)
	go func() {
		defer close(out)
		var settled callResult
		err := p.ev.Await(ctx, awaitJS(slot), &settled)
		if ctx.Err() != nil {
			return
		}
		out <- err
	}()
	return out, nil
}

// SupportedQualities implements player.Player.
func (p *Page) SupportedQualities(ctx context.Context) ([]quality.Quality, error) {
	var res struct {
		callResult
		Qualities []quality.Quality `json:"qualities"`
	}
	if err := p.ev.Evaluate(ctx, supportedQualitiesJS, &res); err != nil {
		return nil, err
	}
	if err := res.err("getSupportedQualityList"); err != nil {
		return nil, err
	}
	return res.Qualities, nil
}

// ReadyState returns document.readyState, or an empty string if there is no
// document.
func (p *Page) ReadyState(ctx context.Context) (string, error) {
	var res struct {
		State string `json:"state"`
	}
	if err := p.ev.Evaluate(ctx, readyStateJS, &res); err != nil {
		return "", err
	}
	return res.State, nil
}

// WaitReady blocks until the document is parsed, i.e. readyState is
// "interactive" or "complete".
func (p *Page) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		state, err := p.ReadyState(ctx)
		if err != nil {
			p.log.Debug().Err(err).Msg("failed to read ready state")
		} else if state == "interactive" || state == "complete" {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
