// Package sink mirrors committed ledger events into an external store
// for listing frontends. The ledger stays the source of truth: the sink
// tracks a cursor of the next event to mirror and replays from the
// ledger after restarts or write failures, so no event is skipped.
package sink

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-launchpad/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-launchpad/internal/log"
	"github.com/Klingon-tech/klingnet-launchpad/internal/storage"
)

// Writer persists one event. Writes must be idempotent: after a crash
// the last event may be written again.
type Writer interface {
	WriteEvent(ctx context.Context, ev ledger.Event) error
	Close()
}

// EventSource is the part of the ledger the sink reads.
type EventSource interface {
	Events(from uint64, limit int, name string) ([]ledger.Event, error)
	Subscribe(fn func(ledger.Event))
}

var keyCursor = []byte("cursor")

const (
	defaultBatch = 256
	retryDelay   = 2 * time.Second
)

// Sink drives a Writer from an EventSource.
type Sink struct {
	src    EventSource
	w      Writer
	cursor storage.DB
	batch  int

	next   uint64
	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New creates a sink. cursor stores the mirroring position; batch bounds
// how many events are read from the ledger at once.
func New(src EventSource, w Writer, cursor storage.DB, batch int) (*Sink, error) {
	if batch <= 0 {
		batch = defaultBatch
	}
	s := &Sink{
		src:    src,
		w:      w,
		cursor: cursor,
		batch:  batch,
		wake:   make(chan struct{}, 1),
		logger: klog.Sink,
	}
	data, err := cursor.Get(keyCursor)
	switch {
	case err == nil && len(data) == 8:
		s.next = binary.BigEndian.Uint64(data)
	case err == nil:
		return nil, fmt.Errorf("corrupt sink cursor")
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("read sink cursor: %w", err)
	}
	return s, nil
}

// Cursor returns the sequence of the next event to mirror.
func (s *Sink) Cursor() uint64 {
	data, err := s.cursor.Get(keyCursor)
	if err != nil || len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// Start subscribes to the source and begins mirroring in the background.
func (s *Sink) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.src.Subscribe(func(ledger.Event) { s.notify() })

	s.logger.Info().Uint64("cursor", s.next).Msg("Event sink started")
	s.wg.Add(1)
	go s.loop(ctx)
	s.notify()
}

// Stop halts mirroring and closes the writer.
func (s *Sink) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.w.Close()
}

func (s *Sink) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sink) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for {
			n, err := s.drain(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn().Err(err).Uint64("cursor", s.next).Msg("Event sink write failed, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDelay):
				}
				continue
			}
			if n < s.batch {
				break
			}
		}
	}
}

// drain mirrors one batch starting at the cursor and returns its size.
func (s *Sink) drain(ctx context.Context) (int, error) {
	events, err := s.src.Events(s.next, s.batch, "")
	if err != nil {
		return 0, fmt.Errorf("read events: %w", err)
	}
	for _, ev := range events {
		if err := s.w.WriteEvent(ctx, ev); err != nil {
			return 0, fmt.Errorf("write event %d: %w", ev.Seq, err)
		}
		s.next = ev.Seq + 1
		if err := s.cursor.Put(keyCursor, binary.BigEndian.AppendUint64(nil, s.next)); err != nil {
			return 0, fmt.Errorf("save cursor: %w", err)
		}
	}
	if len(events) > 0 {
		s.logger.Debug().Int("events", len(events)).Uint64("cursor", s.next).Msg("Events mirrored")
	}
	return len(events), nil
}
