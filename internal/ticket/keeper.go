package ticket

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/usherhq/usher/internal/core"
)

// MintFunc obtains a fresh app ticket, either locally through an Issuer or
// over the wire against a remote server.
type MintFunc func(ctx context.Context) (*core.Ticket, error)

// KeeperOptions tune the refresh loop.
type KeeperOptions struct {
	// Margin is how long before expiry the current ticket is replaced.
	Margin time.Duration

	// RetryBase and RetryMax bound the exponential backoff after a failed
	// refresh.
	RetryBase time.Duration
	RetryMax  time.Duration
}

func (o KeeperOptions) withDefaults() KeeperOptions {
	if o.Margin <= 0 {
		o.Margin = 5 * time.Minute
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = time.Minute
	}
	return o
}

// Keeper maintains a process's own app-ticket credential. A single
// goroutine owns the refresh path, rescheduling itself relative to each new
// ticket's expiry minus a safety margin and backing off on failure; readers
// get an immutable snapshot. A failed refresh never discards the last
// known-good ticket.
type Keeper struct {
	mint    MintFunc
	opts    KeeperOptions
	current atomic.Pointer[core.Ticket]
	done    chan struct{}
}

// NewKeeper returns an unstarted Keeper.
func NewKeeper(mint MintFunc, opts KeeperOptions) *Keeper {
	return &Keeper{
		mint: mint,
		opts: opts.withDefaults(),
		done: make(chan struct{}),
	}
}

// Current returns the latest successfully minted ticket, or nil before the
// first refresh succeeds. The returned ticket must not be mutated.
func (k *Keeper) Current() *core.Ticket {
	return k.current.Load()
}

// Start runs the refresh loop until ctx is cancelled. It refreshes once
// before returning so callers start with a usable credential when the first
// mint succeeds.
func (k *Keeper) Start(ctx context.Context) {
	failures := k.refresh(ctx, 0)
	go k.loop(ctx, failures)
}

// Wait blocks until the refresh loop has exited.
func (k *Keeper) Wait() {
	<-k.done
}

func (k *Keeper) loop(ctx context.Context, failures int) {
	defer close(k.done)
	for {
		var wait time.Duration
		if failures > 0 {
			wait = k.backoff(failures)
		} else {
			wait = k.untilRefresh()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		failures = k.refresh(ctx, failures)
	}
}

// refresh attempts one mint and returns the new consecutive-failure count.
func (k *Keeper) refresh(ctx context.Context, failures int) int {
	t, err := k.mint(ctx)
	if err != nil {
		failures++
		evt := log.Warn()
		if failures >= 3 {
			// Three consecutive failures is the operational alert threshold.
			evt = log.Error()
		}
		evt.Err(err).Int("consecutive_failures", failures).Msg("app ticket refresh failed, keeping previous credential")
		return failures
	}
	k.current.Store(t)
	log.Debug().Time("exp", t.ExpiresAt()).Msg("app ticket refreshed")
	return 0
}

func (k *Keeper) untilRefresh() time.Duration {
	t := k.Current()
	if t == nil {
		return k.opts.RetryBase
	}
	wait := time.Until(t.ExpiresAt()) - k.opts.Margin
	if wait < k.opts.RetryBase {
		wait = k.opts.RetryBase
	}
	return wait
}

func (k *Keeper) backoff(failures int) time.Duration {
	wait := k.opts.RetryBase << (failures - 1)
	if wait > k.opts.RetryMax || wait <= 0 {
		wait = k.opts.RetryMax
	}
	return wait
}
