// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/aiku/mautrix-ircd/pkg/matrix"
)

// notification is what the poller hands to the reactor.
type notification interface {
	isNotification()
}

// remoteEvent carries one event of a poll batch.
type remoteEvent struct {
	evt matrix.Event
}

// batchComplete follows the last event of a batch.
type batchComplete struct{}

// pollFailed replaces a batch when the poll kept failing.
type pollFailed struct {
	err error
}

func (remoteEvent) isNotification()   {}
func (batchComplete) isNotification() {}
func (pollFailed) isNotification()    {}

// Poller long-polls the remote service in a goroutine of its own. Each cycle
// is started by Next; its events are forwarded one at a time in receipt
// order, followed by a batchComplete. The poller never touches bridge state.
type Poller struct {
	remote     RemoteService
	notify     chan<- notification
	next       chan struct{}
	retries    int
	newBackOff func() backoff.BackOff
	log        zerolog.Logger
}

// NewPoller creates a poller that sends to notify. A failing poll is retried
// up to retries times before the failure is reported.
func NewPoller(remote RemoteService, notify chan<- notification, retries int, log zerolog.Logger) *Poller {
	return &Poller{
		remote:     remote,
		notify:     notify,
		next:       make(chan struct{}, 1),
		retries:    retries,
		newBackOff: defaultBackOff,
		log:        log.With().Str("component", "poller").Logger(),
	}
}

// Next schedules one poll cycle. Calls made while a cycle is already
// scheduled are coalesced.
func (p *Poller) Next() {
	select {
	case p.next <- struct{}{}:
	default:
	}
}

// Run executes poll cycles until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.next:
		}

		events, err := p.poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			pollCyclesTotal.WithLabelValues("error").Inc()
			p.log.Error().Err(err).Msg("Poll cycle failed")
			p.send(ctx, pollFailed{err: &TransportError{Op: "poll", Err: err}})
			continue
		}
		pollCyclesTotal.WithLabelValues("ok").Inc()

		for _, evt := range events {
			if !p.send(ctx, remoteEvent{evt: evt}) {
				return nil
			}
		}
		if !p.send(ctx, batchComplete{}) {
			return nil
		}
	}
}

func (p *Poller) poll(ctx context.Context) ([]matrix.Event, error) {
	var events []matrix.Event
	op := func() error {
		var err error
		events, err = p.remote.PollOnce(ctx)
		if errors.Is(err, matrix.ErrNotLoggedIn) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.log.Warn().Err(err).Dur("retry_in", wait).Msg("Poll failed, retrying")
	}
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(max(p.retries, 0))), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return events, nil
}

func (p *Poller) send(ctx context.Context, n notification) bool {
	select {
	case p.notify <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	return b
}
