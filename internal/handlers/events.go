package handlers

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"routing-simulator/internal/simulation"
)

const defaultHeartbeat = 15 * time.Second

// Broadcaster fans engine events out to streaming clients. Slow clients lose
// events instead of holding up the engine.
type Broadcaster struct {
	// Heartbeat is the interval of the keep-alive comment sent to idle
	// streams. A client that went away is detected on the next write.
	Heartbeat time.Duration

	mu     sync.Mutex
	nextID int
	subs   map[int]chan simulation.Event
	buffer int
	closed bool
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}

	return &Broadcaster{
		Heartbeat: defaultHeartbeat,
		subs:      make(map[int]chan simulation.Event),
		buffer:    buffer,
	}
}

// Subscribe returns an event channel and its cancel function. After Close the
// channel is returned already closed.
func (b *Broadcaster) Subscribe() (<-chan simulation.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan simulation.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Broadcaster) Observe(ev simulation.Event) {
	// Outcomes are internal and may be large.
	ev.Outcomes = nil

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends every open stream.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of connected clients.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// EventsHandler streams engine events as server-sent events.
func (h *Handlers) EventsHandler(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	events, cancel := h.Events.Subscribe()
	heartbeat := h.Events.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}

				data, err := sonic.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
			}

			if err := w.Flush(); err != nil {
				return
			}
		}
	}))

	return nil
}
