// Package store holds the configuration of a transcription run and the
// segments it has produced so far.
//
// Every accessor takes the store's lock for the duration of that one call
// only. A panic raised while the lock is held poisons the store: later calls
// fail with ErrUnavailable instead of observing half-written state.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnavailable is returned by every accessor once the store is poisoned.
var ErrUnavailable = errors.New("store: unavailable (poisoned by an earlier panic)")

// DefaultLanguage is used when a request leaves Language empty.
const DefaultLanguage = "ja"

// Request is the immutable description of one transcription run.
type Request struct {
	AudioPath  string `json:"audio_path"`
	ModelPath  string `json:"model_path"`
	Language   string `json:"language,omitempty"`
	Translate  bool   `json:"translate"`
	OffsetMs   int    `json:"offset_ms"`
	DurationMs int    `json:"duration_ms"`
}

// LanguageOrDefault returns Language, or DefaultLanguage when unset.
func (r Request) LanguageOrDefault() string {
	if r.Language == "" {
		return DefaultLanguage
	}
	return r.Language
}

// Segment is one span of recognized speech.
type Segment struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

// Notifier is told about every segment at the moment it is stored.
type Notifier interface {
	SegmentAdded(ctx context.Context, seg Segment) error
}

// Store is the lock-protected holder of a run's request and segments.
// The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	poisoned bool
	req      Request
	segments []Segment
	notifier Notifier
}

// New creates an empty store. notifier may be nil.
func New(notifier Notifier) *Store {
	return &Store{notifier: notifier}
}

// with runs fn while holding the lock. A panic inside fn marks the store
// poisoned before it propagates.
func (s *Store) with(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisoned {
		return ErrUnavailable
	}
	ok := false
	defer func() {
		if !ok {
			s.poisoned = true
		}
	}()
	err := fn()
	ok = true
	return err
}

// Configure replaces the request and clears the stored segments.
func (s *Store) Configure(req Request) error {
	return s.with(func() error {
		s.req = req
		s.segments = nil
		return nil
	})
}

// Request returns a snapshot of the current request.
func (s *Store) Request() (Request, error) {
	var req Request
	err := s.with(func() error {
		req = s.req
		return nil
	})
	return req, err
}

// AudioPath returns the configured input file.
func (s *Store) AudioPath() (string, error) {
	req, err := s.Request()
	return req.AudioPath, err
}

// ModelPath returns the configured model file.
func (s *Store) ModelPath() (string, error) {
	req, err := s.Request()
	return req.ModelPath, err
}

// Language returns the configured language and whether one was set.
func (s *Store) Language() (string, bool, error) {
	req, err := s.Request()
	return req.Language, req.Language != "", err
}

// Translate reports whether output should be translated to English.
func (s *Store) Translate() (bool, error) {
	req, err := s.Request()
	return req.Translate, err
}

// OffsetMs returns the decode start offset.
func (s *Store) OffsetMs() (int, error) {
	req, err := s.Request()
	return req.OffsetMs, err
}

// DurationMs returns the decode duration; 0 means until the end.
func (s *Store) DurationMs() (int, error) {
	req, err := s.Request()
	return req.DurationMs, err
}

// AppendSegment stores seg and notifies the notifier while still holding the
// lock, so listeners see segments in exactly the order they were stored.
// The segment stays stored even when notification fails.
func (s *Store) AppendSegment(ctx context.Context, seg Segment) error {
	return s.with(func() error {
		s.segments = append(s.segments, seg)
		if s.notifier == nil {
			return nil
		}
		if err := s.notifier.SegmentAdded(ctx, seg); err != nil {
			return fmt.Errorf("store: notify segment: %w", err)
		}
		return nil
	})
}

// Segments returns a copy of the stored segments in insertion order.
func (s *Store) Segments() ([]Segment, error) {
	var out []Segment
	err := s.with(func() error {
		out = make([]Segment, len(s.segments))
		copy(out, s.segments)
		return nil
	})
	return out, err
}

// Len returns the number of stored segments.
func (s *Store) Len() (int, error) {
	var n int
	err := s.with(func() error {
		n = len(s.segments)
		return nil
	})
	return n, err
}
