package journal

import (
	"context"
	"time"

	"github.com/peterje/microterm/internal/events"
	"github.com/peterje/microterm/internal/models"
	"github.com/peterje/microterm/internal/pty"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Tracker wraps a SessionManager and journals creations and resizes.
// Journal failures are logged and never fail the session operation.
type Tracker struct {
	pty.SessionManager
	store *Store
	log   *zap.Logger
}

// NewTracker returns a journaling SessionManager.
func NewTracker(mgr pty.SessionManager, store *Store, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{SessionManager: mgr, store: store, log: log}
}

// Create implements pty.SessionManager.
func (t *Tracker) Create(cols, rows int) (string, error) {
	id, err := t.SessionManager.Create(cols, rows)
	if err != nil {
		return "", err
	}

	info := pty.Info{ID: id, Cols: cols, Rows: rows, StartedAt: time.Now()}
	for _, live := range t.SessionManager.List() {
		if live.ID == id {
			info = live
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := t.store.Started(ctx, info); err != nil {
		t.log.Warn("journal create failed", zap.String("session_id", id), zap.Error(err))
	}
	return id, nil
}

// Resize implements pty.SessionManager.
func (t *Tracker) Resize(id string, cols, rows int) error {
	if err := t.SessionManager.Resize(id, cols, rows); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := t.store.Resized(ctx, id, cols, rows, time.Now()); err != nil {
		t.log.Warn("journal resize failed", zap.String("session_id", id), zap.Error(err))
	}
	return nil
}

// Watch records every exit event from src until ctx is done. A nil exit
// code means the session was closed rather than exiting on its own.
func Watch(ctx context.Context, src events.Source, store *Store, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	ch, unsub := src.Subscribe()
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if !ev.IsExit() {
				continue
			}
			status := models.StatusExited
			if ev.ExitCode == nil {
				status = models.StatusClosed
			}
			if err := store.Ended(ctx, ev.SessionID, status, ev.ExitCode, time.Now()); err != nil {
				log.Warn("journal exit failed", zap.String("session_id", ev.SessionID), zap.Error(err))
			}
		}
	}
}

var _ pty.SessionManager = (*Tracker)(nil)
