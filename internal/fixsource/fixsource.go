// Package fixsource turns a stream of raw NMEA sentences from a GPS
// receiver into position fixes, with multiple clients able to subscribe to
// the fix stream from a single port.
package fixsource

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/monitoring"
	"github.com/sachithsulakkhana/lost-and-found-system-sub000/internal/sample"
)

const (
	// StaleAfter is how old the newest fix may be before the receiver is
	// considered stale. Receivers emit at 1Hz, so a few missed sentences
	// are tolerated.
	StaleAfter = 5 * time.Second

	// FixTimeout is how long the agent waits for a first fix after the
	// port opens before reporting signal loss.
	FixTimeout = 15 * time.Second
)

// Sourcer is the fix stream consumed by the tracker pipeline.
type Sourcer interface {
	// Subscribe creates a new channel receiving every decoded fix. The
	// returned ID identifies the channel when unsubscribing.
	Subscribe() (string, chan sample.Fix)
	// Unsubscribe removes a subscriber and closes its channel.
	Unsubscribe(string)
	// Monitor reads and decodes sentences until the context is cancelled
	// or the port fails.
	Monitor(context.Context) error
	// LastFix returns the most recent fix and whether one has been seen.
	LastFix() (sample.Fix, bool)
	// Close closes all subscriber channels and the underlying port.
	Close() error
}

// Source multiplexes one receiver port to many fix subscribers.
type Source[T Porter] struct {
	port         T
	subscribers  map[string]chan sample.Fix
	subscriberMu sync.Mutex

	mu        sync.Mutex
	lastFix   sample.Fix
	hasFix    bool
	accuracyM *float64 // from the most recent GGA sentence
	closing   bool
}

// NewSource wraps an open receiver port.
func NewSource[T Porter](port T) *Source[T] {
	return &Source[T]{
		port:        port,
		subscribers: make(map[string]chan sample.Fix),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Source[T]) Subscribe() (string, chan sample.Fix) {
	id := randomID()
	ch := make(chan sample.Fix, 1)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the source.
func (s *Source[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// LastFix returns the most recent decoded fix.
func (s *Source[T]) LastFix() (sample.Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFix, s.hasFix
}

// Stale reports whether the newest fix is older than StaleAfter as of now.
// A source that has never produced a fix is not stale until FixTimeout has
// elapsed since start; the caller tracks that separately.
func (s *Source[T]) Stale(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasFix {
		return false
	}
	return now.Sub(s.lastFix.Timestamp) > StaleAfter
}

// Monitor reads sentences from the port and fans decoded fixes out to
// subscribers. Lines failing checksum or of an unhandled sentence type are
// dropped silently; sentences that decode but are structurally broken are
// logged and dropped.
func (s *Source[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs in its own goroutine so the outer loop
	// can still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			s.mu.Lock()
			if s.closing {
				s.mu.Unlock()
				return nil
			}
			s.mu.Unlock()

			s.handleLine(line)
		}
	}
}

func (s *Source[T]) handleLine(line string) {
	p, err := parseSentence(line)
	if err != nil {
		monitoring.Logf("gps sentence rejected: %v", err)
		return
	}

	switch p.kind {
	case "GGA":
		s.mu.Lock()
		if p.valid && p.hasHDOP {
			s.accuracyM = sample.Float64(p.hdop * hdopBaseM)
		}
		s.mu.Unlock()

	case "RMC":
		if !p.valid {
			return
		}
		s.mu.Lock()
		fix := fixFromRMC(p, s.accuracyM, time.Now().UTC())
		s.lastFix = fix
		s.hasFix = true
		s.mu.Unlock()
		s.publish(fix)
	}
}

func (s *Source[T]) publish(fix sample.Fix) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- fix:
		default:
			// a slow subscriber must not block the read loop
		}
	}
}

func (s *Source[T]) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	return s.port.Close()
}
