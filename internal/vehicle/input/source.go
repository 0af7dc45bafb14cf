package input

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/autopeer-io/rcbridge/internal/vehicle/queue"
	"github.com/autopeer-io/rcbridge/pkg/log"
)

// ErrSourceClosed is returned by Next once a source has no more events.
var ErrSourceClosed = errors.New("input source closed")

// Source produces input events.
type Source interface {
	// Next blocks until an event is available, the source is exhausted
	// (ErrSourceClosed) or ctx ends.
	Next(ctx context.Context) (Event, error)
}

// Pump feeds events from src into m until the source is exhausted, the abort
// control is pressed, dispatch becomes unavailable or ctx ends. Invalid events
// are logged and skipped. A clean end of input returns nil.
func Pump(ctx context.Context, src Source, m *Mapper) error {
	for {
		e, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) {
				return nil
			}
			return err
		}

		err = m.Handle(e)
		switch {
		case err == nil:
		case errors.Is(err, ErrAborted):
			m.logger.Info("Input aborted")
			if unwrapped := withoutAbort(err); unwrapped != nil {
				return unwrapped
			}
			return nil
		case errors.Is(err, ErrUnknownControl), errors.Is(err, ErrUnknownEdge):
			m.logger.Warn("Skipping invalid input event", "error", err.Error())
		default:
			return err
		}
	}
}

// withoutAbort returns the errors joined with ErrAborted, if any.
func withoutAbort(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return nil
	}
	var rest []error
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, ErrAborted) {
			rest = append(rest, e)
		}
	}
	return errors.Join(rest...)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
}

func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{events: events}
}

func (s *SliceSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if len(s.events) == 0 {
		return Event{}, ErrSourceClosed
	}
	e := s.events[0]
	s.events = s.events[1:]
	return e, nil
}

// ReaderSource reads one JSON event per line, e.g. from stdin. Blank and
// undecodable lines are logged and skipped.
type ReaderSource struct {
	events *queue.Receiver[Event]
}

// NewReaderSource starts reading r in its own goroutine.
func NewReaderSource(r io.Reader, logger log.Logger) *ReaderSource {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	tx, rx := queue.New[Event]()
	go func() {
		defer tx.Close()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			e, err := ParseEvent(line)
			if err != nil {
				logger.Warn("Skipping input line", "error", err.Error())
				continue
			}
			if err := tx.Send(e); err != nil {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error(err, "Reading input failed")
		}
	}()
	return &ReaderSource{events: rx}
}

func (s *ReaderSource) Next(ctx context.Context) (Event, error) {
	return next(ctx, s.events)
}

// Close stops delivering events. Unread events are dropped.
func (s *ReaderSource) Close() {
	s.events.Close()
}

func next(ctx context.Context, rx *queue.Receiver[Event]) (Event, error) {
	e, err := rx.Recv(ctx)
	if errors.Is(err, queue.ErrClosed) {
		return Event{}, ErrSourceClosed
	}
	return e, err
}
