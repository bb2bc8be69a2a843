// Package state provides the single-owner container every store in the engine keeps its data in.
//
// A Box owns one value on a dedicated goroutine. Mutations travel to that goroutine as closures,
// run against a private copy and are committed only when they return nil, so readers never observe
// half-applied updates. Reads and subscriptions hand out deep copies.
package state

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned once the box has been closed; results arriving after that point are dropped.
var ErrClosed = errors.New("state container closed")

// ErrBusy is returned when the owning goroutine does not accept work in time.
var ErrBusy = errors.New("state queue is busy")

// queueTimeout bounds how long a caller waits for the loop, matching the service loops it replaces.
const queueTimeout = 2 * time.Second

// command envelopes a mutation so the loop can apply it and report back.
type command[T any] struct {
	apply func(*T) error
	reply chan commandResult[T]
}

type commandResult[T any] struct {
	value T
	err   error
}

// subscription registers a listener channel with the loop.
type subscription[T any] struct {
	ch chan T
}

// Box serializes every access to a value of type T through one goroutine.
type Box[T any] struct {
	commands    chan command[T]
	queries     chan chan T
	subscribe   chan subscription[T]
	unsubscribe chan chan T
	quit        chan struct{}
	closeOnce   sync.Once
	clone       func(T) T
}

// New starts the owning goroutine immediately. clone must return a deep copy of its argument.
func New[T any](initial T, clone func(T) T) *Box[T] {
	b := &Box[T]{
		commands:    make(chan command[T]),
		queries:     make(chan chan T),
		subscribe:   make(chan subscription[T]),
		unsubscribe: make(chan chan T),
		quit:        make(chan struct{}),
		clone:       clone,
	}
	go b.loop(initial)
	return b
}

func (b *Box[T]) loop(value T) {
	subs := make(map[chan T]struct{})
	defer func() {
		for ch := range subs {
			close(ch)
		}
	}()
	for {
		select {
		case cmd := <-b.commands:
			next := b.clone(value)
			if err := cmd.apply(&next); err != nil {
				cmd.reply <- commandResult[T]{value: b.clone(value), err: err}
				continue
			}
			value = next
			for ch := range subs {
				publish(ch, b.clone(value))
			}
			cmd.reply <- commandResult[T]{value: b.clone(value)}
		case reply := <-b.queries:
			reply <- b.clone(value)
		case sub := <-b.subscribe:
			subs[sub.ch] = struct{}{}
			publish(sub.ch, b.clone(value))
		case ch := <-b.unsubscribe:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
		case <-b.quit:
			return
		}
	}
}

// publish keeps only the latest snapshot in a one-slot channel.
func publish[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Update applies fn on the owning goroutine and returns the committed snapshot.
// When fn returns an error the value is left untouched and the error is returned as is.
// ctx only bounds the wait for a queue slot; once fn is queued Update reports its result.
func (b *Box[T]) Update(ctx context.Context, fn func(*T) error) (T, error) {
	var zero T
	reply := make(chan commandResult[T], 1)
	cmd := command[T]{apply: fn, reply: reply}

	timer := time.NewTimer(queueTimeout)
	defer timer.Stop()

	select {
	case b.commands <- cmd:
	case <-b.quit:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrBusy
	}

	select {
	case res := <-reply:
		return res.value, res.err
	case <-b.quit:
		return zero, ErrClosed
	}
}

// Snapshot returns a deep copy of the current value.
func (b *Box[T]) Snapshot(ctx context.Context) (T, error) {
	var zero T
	reply := make(chan T, 1)

	timer := time.NewTimer(queueTimeout)
	defer timer.Stop()

	select {
	case b.queries <- reply:
	case <-b.quit:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrBusy
	}

	select {
	case v := <-reply:
		return v, nil
	case <-b.quit:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Subscribe returns a channel that always holds the most recent snapshot, starting with the
// current one. The channel is closed by cancel or when the box closes.
func (b *Box[T]) Subscribe(ctx context.Context) (<-chan T, func(), error) {
	ch := make(chan T, 1)
	select {
	case b.subscribe <- subscription[T]{ch: ch}:
	case <-b.quit:
		return nil, func() {}, ErrClosed
	case <-ctx.Done():
		return nil, func() {}, ctx.Err()
	}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			select {
			case b.unsubscribe <- ch:
			case <-b.quit:
			}
		})
	}
	return ch, cancel, nil
}

// Close stops the goroutine. It is safe to call more than once.
func (b *Box[T]) Close() {
	b.closeOnce.Do(func() { close(b.quit) })
}

// Closed reports whether Close has been called.
func (b *Box[T]) Closed() bool {
	select {
	case <-b.quit:
		return true
	default:
		return false
	}
}
