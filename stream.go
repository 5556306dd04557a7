package structcache

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/structcache/structcache/internal/observability"
	"github.com/structcache/structcache/pkg/types"
)

// EventType identifies one kind of streaming lifecycle event.
type EventType string

const (
	// EventStart is emitted once, before any work happens.
	EventStart EventType = "start"
	// EventProgress is emitted zero or more times as the request moves
	// through its stages.
	EventProgress EventType = "progress"
	// EventComplete is the successful terminal event, carrying the result.
	EventComplete EventType = "complete"
	// EventError is the failing terminal event.
	EventError EventType = "error"
)

// Event is one streaming lifecycle notification. A stream emits exactly one
// start event, any number of progress events, and exactly one terminal
// complete or error event.
type Event struct {
	Type      EventType
	RequestID string

	// Stage names the step in flight for progress events: cache_check,
	// generating, validating.
	Stage string

	// Attempt is the generation attempt the progress event belongs to.
	// Zero for stages before the first invocation.
	Attempt int

	// Result is set on the complete event.
	Result *types.Result

	// Err is set on the error event.
	Err error
}

// Stream delivers generation lifecycle events.
//
// Example:
//
//	stream, err := client.GenerateStream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    ev, err := stream.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(ev.Type, ev.Stage)
//	}
type Stream struct {
	events chan Event
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Recv returns the next event from the stream.
// Returns io.EOF after the terminal event has been delivered.
func (s *Stream) Recv() (Event, error) {
	ev, ok := <-s.events
	if !ok {
		return Event{}, io.EOF
	}
	return ev, nil
}

// Close abandons the stream, cancelling any in-flight generation. A
// generation cancelled this way writes nothing to the cache. It's safe to
// call Close multiple times.
func (s *Stream) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

// GenerateStream runs the same orchestration as Generate but reports
// lifecycle events as the request progresses. Results cached through this
// surface use a shortened TTL because streamed requests skew interactive.
func (c *Client) GenerateStream(ctx context.Context, req *types.Request) (*Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	ctx, requestID := observability.GetOrCreateRequestID(ctx)
	ctx, cancel := context.WithCancel(ctx)

	s := &Stream{
		events: make(chan Event, 16),
		cancel: cancel,
	}

	emit := func(ev Event) {
		ev.RequestID = requestID
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(s.events)

		emit(Event{Type: EventStart})

		result, err := c.generate(ctx, req, func(stage string, attempt int) {
			emit(Event{Type: EventProgress, Stage: stage, Attempt: attempt})
		}, streamTTLCap)

		if err != nil {
			emit(Event{Type: EventError, Err: err})
			return
		}
		emit(Event{Type: EventComplete, Result: result})
	}()

	return s, nil
}
