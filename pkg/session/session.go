// Package session keeps editor sessions for the HTTP server.
//
// A session pairs one decoded source image with the current render
// parameters and viewport. Clients create a session by uploading an image,
// then adjust parameters, reset them and download the result; every change
// replaces the parameters wholesale and bumps the session generation.
//
// Sessions expire after a TTL that is extended on every access. Expired
// sessions read as missing and are removed by [Store.Cleanup].
//
//	store := session.NewMemoryStore()
//	sess := session.New(img, render.DefaultParams(), vp, session.DefaultTTL)
//	_ = store.Set(ctx, sess)
//
//	sess, err := store.Update(ctx, id, func(s *session.Session) error {
//	    s.Params.SliceCount = 40
//	    return nil
//	})
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/fractaliser/pkg/render"
	"github.com/matzehuels/fractaliser/pkg/source"
)

// Sentinel errors for session operations.
var (
	// ErrNotFound is returned when a session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
)

// DefaultTTL is the default idle lifetime of a session.
const DefaultTTL = 30 * time.Minute

// Session is one editor's state.
type Session struct {
	ID       string          `json:"id"`
	Source   *source.Image   `json:"-"`
	Params   render.Params   `json:"params"`
	Viewport render.Viewport `json:"viewport"`

	// Generation increases on every parameter change.
	Generation uint64 `json:"generation"`

	TTL       time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// New creates a session with a random UUID.
// A non-positive ttl selects DefaultTTL.
func New(src *source.Image, params render.Params, vp render.Viewport, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Source:    src,
		Params:    params,
		Viewport:  vp,
		TTL:       ttl,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Touch extends the expiry by the session TTL.
func (s *Session) Touch() {
	s.ExpiresAt = time.Now().Add(s.TTL)
}

// SetParams replaces the parameters and bumps the generation.
func (s *Session) SetParams(p render.Params) {
	s.Params = p
	s.Generation++
	s.UpdatedAt = time.Now()
}

// Reset restores the default parameters.
func (s *Session) Reset() {
	s.SetParams(render.DefaultParams())
}

// clone returns a shallow copy; the source image is immutable and shared.
func (s *Session) clone() *Session {
	c := *s
	return &c
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a session by ID and extends its expiry.
	// Returns ErrNotFound if the session doesn't exist or has expired.
	Get(ctx context.Context, id string) (*Session, error)

	// Set stores a session, replacing any with the same ID.
	Set(ctx context.Context, sess *Session) error

	// Update applies fn to the stored session atomically and returns the
	// updated copy. If fn returns an error the session is left unchanged.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired sessions and reports how many were dropped.
	Cleanup(ctx context.Context) (int, error)
}

// RunJanitor calls store.Cleanup every interval until ctx is done.
func RunJanitor(ctx context.Context, store Store, interval time.Duration, onError func(error)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := store.Cleanup(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
