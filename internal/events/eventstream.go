// internal/events/eventstream.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package events provides a small pub/sub backbone that carries the
// coordinator's outward state/launch/plan callbacks to whatever transport
// (the command server, a test harness) wants to observe them, without the
// coordinator holding a back-reference to its listeners.
package events

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kjeon/wcs-core/internal/log"
)

// EventType distinguishes the outward notifications the core produces.
type EventType int

const (
	StateChangedEvent EventType = iota
	LaunchedEvent
	PlanUpdatedEvent
	AssignmentChangedEvent
)

func (t EventType) String() string {
	switch t {
	case StateChangedEvent:
		return "StateChanged"
	case LaunchedEvent:
		return "Launched"
	case PlanUpdatedEvent:
		return "PlanUpdated"
	case AssignmentChangedEvent:
		return "AssignmentChanged"
	default:
		return "Unknown"
	}
}

// Event is a single posted notification. Only the fields relevant to
// Type are populated; the rest are zero.
type Event struct {
	Type EventType
	At   time.Time

	TubeNo int

	// StateChangedEvent
	FromState string
	ToState   string

	// LaunchedEvent
	Launched bool

	// PlanUpdatedEvent
	PlanValid      bool
	PlanTotalTimeS float64
	TrajectoryLen  int

	// AssignmentChangedEvent
	Assigned bool
}

func (e Event) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", e.Type.String()),
		slog.Int("tube_no", e.TubeNo),
		slog.Time("at", e.At),
	)
}

// Stream is a mutex-guarded append-only event log with offset-tracking
// subscriptions. The monitor periodically compacts away the prefix that
// every subscriber has already read.
type Stream struct {
	mu            sync.Mutex
	events        []Event
	subscriptions map[*Subscription]struct{}
	lastPost      time.Time
	warnedLong    bool
	done          chan struct{}
	lg            *log.Logger
}

// Subscription tracks one subscriber's read offset into the Stream.
type Subscription struct {
	stream      *Stream
	offset      int
	lastGet     time.Time
	warnedNoGet bool
}

// New creates a Stream and starts its stall-detection monitor goroutine.
func New(lg *log.Logger) *Stream {
	s := &Stream{
		subscriptions: make(map[*Subscription]struct{}),
		lastPost:      time.Now(),
		done:          make(chan struct{}),
		lg:            lg,
	}
	go s.monitor()
	return s
}

// Subscribe registers a new subscriber starting from the current end of
// the stream; events posted before Subscribe are never delivered to it.
func (s *Stream) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription{stream: s, offset: len(s.events), lastGet: time.Now()}
	s.subscriptions[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from the stream.
func (sub *Subscription) Unsubscribe() {
	sub.stream.mu.Lock()
	defer sub.stream.mu.Unlock()
	delete(sub.stream.subscriptions, sub)
	sub.stream = nil
}

// Post appends event to the stream. Events are dropped if there are no
// subscribers; no one's paying attention.
func (s *Stream) Post(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lg.Debug("posted event", slog.Any("event", event))

	if len(s.subscriptions) > 0 {
		s.lastPost = time.Now()
		s.events = append(s.events, event)
	}
}

// Get returns every event posted since sub's last Get call.
func (sub *Subscription) Get() []Event {
	sub.stream.mu.Lock()
	defer sub.stream.mu.Unlock()

	evs := slices.Clone(sub.stream.events[sub.offset:])
	sub.offset = len(sub.stream.events)
	sub.lastGet = time.Now()
	sub.warnedNoGet = false
	return evs
}

// Destroy stops the monitor goroutine and clears all subscriptions.
func (s *Stream) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.done)
	clear(s.subscriptions)
}

func (s *Stream) monitor() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		s.compact()

		if len(s.events) > 1000 && !s.warnedLong {
			s.lg.Warn("long event stream", slog.Int("length", len(s.events)))
			s.warnedLong = true
		}

		if time.Since(s.lastPost) < 5*time.Second {
			for sub := range s.subscriptions {
				if d := time.Since(sub.lastGet); d > 10*time.Second && !sub.warnedNoGet {
					s.lg.Warn("subscriber has not called Get recently", slog.Duration("duration", d))
					sub.warnedNoGet = true
				}
			}
		}
		s.mu.Unlock()
	}
}

// compact reclaims storage for events every subscriber has consumed.
func (s *Stream) compact() {
	minOffset := len(s.events)
	for sub := range s.subscriptions {
		if sub.offset < minOffset {
			minOffset = sub.offset
		}
	}

	if minOffset > cap(s.events)/2 && minOffset > 0 {
		n := len(s.events) - minOffset
		copy(s.events, s.events[minOffset:])
		s.events = s.events[:n]
		for sub := range s.subscriptions {
			sub.offset -= minOffset
		}
		s.warnedLong = false
	}
}

func (s *Stream) LogValue() slog.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slog.GroupValue(
		slog.Int("len", len(s.events)),
		slog.Int("subscribers", len(s.subscriptions)),
	)
}
