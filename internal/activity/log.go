// Package activity keeps a bounded in-memory log of recent prediction and
// download events for the dashboard.
package activity

import (
	"sync"
	"time"
)

type EventType string

const (
	EventPrediction       EventType = "prediction"
	EventPredictionFailed EventType = "prediction_failed"
	EventDownload         EventType = "download"
)

type Event struct {
	At       time.Time
	Type     EventType
	Username string
	Rows     int
	Note     string
}

// Log is a fixed-size ring buffer. Writers never block; old events are
// overwritten once the buffer is full.
type Log struct {
	mu   sync.RWMutex
	buf  []Event
	next int
	full bool
}

func New(size int) *Log {
	if size <= 0 {
		size = 200
	}
	return &Log{
		buf: make([]Event, size),
	}
}

func (l *Log) Add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = e
	l.next++
	if l.next >= len(l.buf) {
		l.next = 0
		l.full = true
	}
}

// List returns events newest first.
func (l *Log) List() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.full && l.next == 0 {
		return nil
	}

	var out []Event
	if l.full {
		out = make([]Event, 0, len(l.buf))
		out = append(out, l.buf[l.next:]...)
		out = append(out, l.buf[:l.next]...)
	} else {
		out = append([]Event(nil), l.buf[:l.next]...)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
