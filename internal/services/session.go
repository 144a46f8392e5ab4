package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventdeck/internal/delta"
	"eventdeck/internal/domain"
)

// TokenSink receives the bearer token attached to authenticated remote
// calls. Satisfied by the remote client.
type TokenSink interface {
	SetAuthToken(token string)
}

// Session owns the authentication state and the user-scope boundary. Login
// swaps the user-scoped stores onto the account's namespaces; logout cancels
// in-flight user work, purges the user scope, and returns everything to
// guest mode. The public event cache is deliberately untouched by either.
type Session struct {
	notifier
	store     domain.LocalStore
	tokens    TokenSink
	inspector domain.TokenInspector
	marks     *delta.WatermarkStore
	favorites *Favorites
	tickets   *Tickets
	myEvents  *MyEvents
	logger    *slog.Logger

	mu      sync.Mutex
	current domain.Session
	cancel  context.CancelFunc
	guestID string
}

func NewSession(
	store domain.LocalStore,
	tokens TokenSink,
	inspector domain.TokenInspector,
	marks *delta.WatermarkStore,
	favorites *Favorites,
	tickets *Tickets,
	myEvents *MyEvents,
	logger *slog.Logger,
) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:     store,
		tokens:    tokens,
		inspector: inspector,
		marks:     marks,
		favorites: favorites,
		tickets:   tickets,
		myEvents:  myEvents,
		logger:    logger,
	}
}

// Current returns the active session, zero in guest mode.
func (s *Session) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LoggedIn reports whether a user session is active.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.UserID != 0
}

// GuestID returns the stable device-local guest identity, minting it on
// first use. It names the guest favorites namespace and survives login.
func (s *Session) GuestID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guestID != "" {
		return s.guestID
	}
	var id string
	if err := domain.GetJSON(ctx, s.store, domain.KeyGuestIdentity, &id); err != nil || id == "" {
		id = uuid.NewString()
		if err := domain.PutJSON(ctx, s.store, domain.KeyGuestIdentity, domain.ScopePublic, id); err != nil {
			s.logger.Warn("failed to persist guest identity", "error", err)
		}
	}
	s.guestID = id
	return id
}

// Login accepts a backend-issued access token, reads the identity from its
// claims, persists it for restore, and swaps the user-scoped stores onto the
// account's namespaces. Any cached guest favorites stay put until the user
// confirms the merge.
func (s *Session) Login(ctx context.Context, token string) (domain.Session, error) {
	sess, err := s.inspector.Inspect(token)
	if err != nil {
		return domain.Session{}, fmt.Errorf("login: %w", err)
	}
	if sess.Expired(time.Now()) {
		return domain.Session{}, domain.ErrSessionExpired
	}

	if err := domain.PutJSON(ctx, s.store, domain.KeySessionToken, domain.ScopePublic, token); err != nil {
		s.logger.Warn("failed to persist session token", "error", err)
	}
	s.activate(ctx, sess)
	s.logger.Info("logged in", "user_id", sess.UserID)
	return sess, nil
}

// Restore revives a persisted session at startup. No stored token means
// guest mode and no error; a stored token that is expired or unreadable is
// dropped so the next start is a clean guest.
func (s *Session) Restore(ctx context.Context) error {
	var token string
	if err := domain.GetJSON(ctx, s.store, domain.KeySessionToken, &token); err != nil {
		return nil
	}

	sess, err := s.inspector.Inspect(token)
	if err != nil {
		_ = s.store.Delete(ctx, domain.KeySessionToken)
		return fmt.Errorf("restore session: %w", err)
	}
	if sess.Expired(time.Now()) {
		_ = s.store.Delete(ctx, domain.KeySessionToken)
		return domain.ErrSessionExpired
	}

	s.activate(ctx, sess)
	s.logger.Info("session restored", "user_id", sess.UserID)
	return nil
}

// Logout tears the session down: cancel in-flight user-scoped work first so
// nothing can write after the purge, then drop the credential, clear the
// user scope and its watermarks, and return the stores to guest mode.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	sess := s.current
	cancel := s.cancel
	s.current = domain.Session{}
	s.cancel = nil
	s.mu.Unlock()
	if sess.UserID == 0 {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	// The stores leave the user before the purge: once their session guards
	// see guest mode, an already in-flight user-scoped write is discarded
	// instead of resurrecting a purged key.
	s.favorites.LoadGuest(ctx)
	s.tickets.Reset()
	s.myEvents.Reset()
	s.tokens.SetAuthToken("")

	var errs []error
	if err := s.store.Delete(ctx, domain.KeySessionToken); err != nil {
		errs = append(errs, fmt.Errorf("delete session token: %w", err))
	}
	if err := s.store.Clear(ctx, domain.ScopeUser(sess.UserID)); err != nil {
		errs = append(errs, fmt.Errorf("clear user scope: %w", err))
	}
	if err := s.marks.Reset(ctx, domain.CollectionMyEvents, domain.CollectionTickets, domain.CollectionFavorites); err != nil {
		errs = append(errs, fmt.Errorf("reset watermarks: %w", err))
	}
	s.notify()
	s.logger.Info("logged out", "user_id", sess.UserID)
	return errors.Join(errs...)
}

func (s *Session) activate(ctx context.Context, sess domain.Session) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	// The user context outlives the login call on purpose; it is the
	// cancellation boundary for background user-scoped work until logout.
	userCtx, cancel := context.WithCancel(context.Background())
	s.current = sess
	s.cancel = cancel
	s.mu.Unlock()

	s.tokens.SetAuthToken(sess.Token)
	s.favorites.SetUser(ctx, sess.UserID, userCtx)
	s.tickets.SetUser(ctx, sess.UserID)
	s.myEvents.SetUser(ctx, sess.UserID)
	s.notify()
}
