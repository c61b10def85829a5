package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// errCallerGone marks a call abandoned because the caller's own context
// ended. It says nothing about store health.
var errCallerGone = errors.New("caller abandoned the call")

// Observer is told the outcome of every guarded call.
type Observer func(op string, err error)

type GuardConfig struct {
	Timeout             time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Observer            Observer
}

// GuardedStore bounds every call to an inner store with a deadline and a
// circuit breaker. It never retries.
type GuardedStore struct {
	inner    AssetStore
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker[any]
	observer Observer
	logger   *zap.Logger
}

func NewGuardedStore(inner AssetStore, cfg GuardConfig, logger *zap.Logger) *GuardedStore {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	st := gobreaker.Settings{
		Name:        "asset-store",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// caller mistakes say nothing about store health
			return err == nil ||
				errors.Is(err, errCallerGone) ||
				errors.Is(err, ErrAssetNotFound) ||
				errors.Is(err, ErrEmptyAsset) ||
				errors.Is(err, ErrInvalidName)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Asset store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &GuardedStore{
		inner:    inner,
		timeout:  cfg.Timeout,
		breaker:  gobreaker.NewCircuitBreaker[any](st),
		observer: cfg.Observer,
		logger:   logger,
	}
}

func (g *GuardedStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	res, err := g.call(ctx, "put", func(ctx context.Context) (any, error) {
		return g.inner.Put(ctx, data, contentType)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (g *GuardedStore) Delete(ctx context.Context, ref string) error {
	_, err := g.call(ctx, "delete", func(ctx context.Context) (any, error) {
		return nil, g.inner.Delete(ctx, ref)
	})
	return err
}

func (g *GuardedStore) Open(ctx context.Context, name string) (afero.File, error) {
	res, err := g.call(ctx, "open", func(ctx context.Context) (any, error) {
		return g.inner.Open(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return res.(afero.File), nil
}

type result struct {
	val any
	err error
}

func (g *GuardedStore) call(parent context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	ctx := parent
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, g.timeout)
		defer cancel()
	}

	val, err := g.breaker.Execute(func() (any, error) {
		done := make(chan result, 1)
		go func() {
			v, err := fn(ctx)
			done <- result{val: v, err: err}
		}()

		select {
		case r := <-done:
			if r.err != nil && parent.Err() != nil && errors.Is(r.err, parent.Err()) {
				return nil, fmt.Errorf("%w: %w", errCallerGone, r.err)
			}
			return r.val, r.err
		case <-ctx.Done():
			go release(done)
			if parent.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerGone, parent.Err())
			}
			return nil, ctx.Err()
		}
	})

	err = g.classify(err)
	if g.observer != nil {
		g.observer(op, err)
	}
	if err != nil {
		g.logger.Debug("Asset store call failed", zap.String("op", op), zap.Error(err))
	}
	return val, err
}

// release waits out an abandoned call and closes whatever it opened.
func release(done <-chan result) {
	r := <-done
	if c, ok := r.val.(io.Closer); ok && c != nil {
		_ = c.Close()
	}
}

func (g *GuardedStore) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errCallerGone):
		return err
	case errors.Is(err, ErrAssetNotFound),
		errors.Is(err, ErrEmptyAsset),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
