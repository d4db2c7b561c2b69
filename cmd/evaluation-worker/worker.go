package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/quillcoach/credits-backend/pkg/logger"
)

const readinessTimeout = 10 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Name() string
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	ping pinger
}

// Worker runs every consumer until shutdown or until one of them stops.
type Worker struct {
	logg      *logger.Logger
	deps      []dependency
	consumers []consumer
}

func NewWorker(logg *logger.Logger, deps map[string]pinger, consumers ...consumer) (*Worker, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	w := &Worker{logg: logg}
	for _, name := range []string{"database", "redis", "pubsub"} {
		p, ok := deps[name]
		if !ok || p == nil {
			return nil, fmt.Errorf("%s client is required", name)
		}
		w.deps = append(w.deps, dependency{name: name, ping: p})
	}
	for _, c := range consumers {
		if c != nil {
			w.consumers = append(w.consumers, c)
		}
	}
	if len(w.consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	return w, nil
}

func (w *Worker) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()
	var errs error
	for _, d := range w.deps {
		if err := d.ping.Ping(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	return errs
}

// Run returns ctx.Err() on shutdown and the first consumer failure otherwise.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.ready(ctx); err != nil {
		w.logg.Error(ctx, "worker dependencies not ready", err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range w.consumers {
		w.logg.Info(w.logg.WithField(ctx, "consumer", c.Name()), "consumer started")
		g.Go(func() error {
			err := c.Run(gctx)
			if err == nil && gctx.Err() == nil {
				err = fmt.Errorf("consumer %s stopped", c.Name())
			}
			return err
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	w.logg.Error(ctx, "consumer stopped unexpectedly", err)
	return err
}
