// Package session tracks the admin credential. The durable token store is the source of truth on
// startup; the remote service decides whether a stored token is still valid.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cafe/pkg/failure"
	"cafe/pkg/state"
	"cafe/pkg/storage/tokenstore"
)

// Operation names recorded in State.Ops.
const (
	OpLogin  = "login"
	OpVerify = "verify"
)

var (
	// ErrSessionExpired is returned by Verify after the stored token was rejected and discarded.
	ErrSessionExpired = failure.AuthExpiry(errors.New("session expired"))
	// ErrMissingCredentials is returned when username or password is blank.
	ErrMissingCredentials = failure.Validation("username and password are required")
)

// User is the admin account as the remote service reports it.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user,omitempty"`
}

// Remote authenticates against the admin API. Verify checks whatever token the client sends.
type Remote interface {
	Login(ctx context.Context, username, password string) (LoginResult, error)
	Verify(ctx context.Context) (User, error)
}

// State is the session snapshot. Authenticated always equals Token != "".
type State struct {
	Token         string     `json:"-"`
	User          *User      `json:"user,omitempty"`
	Authenticated bool       `json:"is_authenticated"`
	Subject       string     `json:"subject,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Ops           state.Ops  `json:"ops"`
	Error         string     `json:"error,omitempty"`
}

// Expired reports whether the token carries an exp claim before now. Tokens without one never expire
// locally.
func (s State) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

func cloneState(s State) State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		s.ExpiresAt = &t
	}
	s.Ops = s.Ops.Clone()
	return s
}

// setToken is the only place the token and the fields derived from it change.
func (s *State) setToken(token string) {
	s.Token = token
	s.Authenticated = token != ""
	s.Subject, s.ExpiresAt = "", nil
	if token == "" {
		s.User = nil
		return
	}
	s.Subject, s.ExpiresAt = decodeClaims(token)
}

// decodeClaims reads sub and exp without checking the signature; the server stays the authority.
func decodeClaims(token string) (string, *time.Time) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", nil
	}
	if claims.ExpiresAt == nil {
		return claims.Subject, nil
	}
	exp := claims.ExpiresAt.Time.UTC()
	return claims.Subject, &exp
}

// Session owns the admin credential.
type Session struct {
	box    *state.Box[State]
	remote Remote
	tokens tokenstore.Store
	logger *slog.Logger

	// persist pairs every durable token write with the state commit that matches it
	persist sync.Mutex
}

// New restores the token persisted by an earlier run. A nil logger falls back to slog.Default.
func New(ctx context.Context, remote Remote, tokens tokenstore.Store, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	token, err := tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	initial := State{Ops: state.Ops{}}
	initial.setToken(token)
	s := &Session{
		box:    state.New(initial, cloneState),
		remote: remote,
		tokens: tokens,
		logger: logger.With(slog.String("component", "session")),
	}
	if token != "" {
		s.logger.Debug("stored token restored", slog.String("subject", initial.Subject))
	}
	return s, nil
}

// Snapshot returns the current session.
func (s *Session) Snapshot(ctx context.Context) (State, error) {
	return s.box.Snapshot(ctx)
}

// Subscribe streams the session after every change.
func (s *Session) Subscribe(ctx context.Context) (<-chan State, func(), error) {
	return s.box.Subscribe(ctx)
}

// Login exchanges credentials for a token and persists it. Any failure leaves the session
// unauthenticated with nothing stored.
func (s *Session) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return s.reject(ctx, ErrMissingCredentials)
	}
	if _, err := s.box.Update(ctx, func(st *State) error {
		st.Ops[OpLogin] = state.PhasePending
		st.Error = ""
		return nil
	}); err != nil {
		return err
	}

	res, err := s.remote.Login(ctx, username, password)
	if err == nil && res.AccessToken == "" {
		err = failure.Rejection(0, "")
	}
	if err != nil {
		return s.reject(ctx, err)
	}

	s.persist.Lock()
	if err := s.tokens.Save(ctx, res.AccessToken); err != nil {
		s.persist.Unlock()
		return s.reject(ctx, err)
	}
	err = s.commit(ctx, func(st *State) error {
		st.setToken(res.AccessToken)
		if res.User != nil {
			u := *res.User
			st.User = &u
		}
		st.Ops[OpLogin] = state.PhaseSucceeded
		return nil
	})
	s.persist.Unlock()
	if err != nil {
		return err
	}
	s.logger.Info("admin logged in", slog.String("username", username))
	return nil
}

// reject clears the credential everywhere and records why the login failed.
func (s *Session) reject(ctx context.Context, cause error) error {
	s.logger.Warn("login failed",
		slog.String("kind", failure.KindOf(cause).String()),
		slog.String("error", cause.Error()))
	s.persist.Lock()
	defer s.persist.Unlock()
	if err := s.tokens.Clear(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("clearing stored token failed", slog.String("error", err.Error()))
	}
	reason := failure.Reason(cause, "Login failed")
	if err := s.commit(ctx, func(st *State) error {
		st.setToken("")
		st.Ops[OpLogin] = state.PhaseFailed
		st.Error = reason
		return nil
	}); err != nil {
		return err
	}
	return cause
}

// Verify asks the remote service whether the current token is still accepted. Without a token it
// returns false without a remote call. A rejected token is discarded and ErrSessionExpired
// returned; callers that only need the boolean may ignore it.
func (s *Session) Verify(ctx context.Context) (bool, error) {
	var token string
	if _, err := s.box.Update(ctx, func(st *State) error {
		token = st.Token
		if token != "" {
			st.Ops[OpVerify] = state.PhasePending
		}
		return nil
	}); err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}

	user, err := s.remote.Verify(ctx)
	if err != nil {
		return s.expire(ctx, token, err)
	}

	authenticated := false
	err = s.commit(ctx, func(st *State) error {
		st.Ops[OpVerify] = state.PhaseSucceeded
		// a logout or new login while verifying wins
		if st.Token != token {
			authenticated = st.Authenticated
			return nil
		}
		u := user
		st.User = &u
		authenticated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return authenticated, nil
}

// expire discards token after the remote service refused it. A logout or new login that happened
// while verifying wins: the session and the durable store are then left alone.
func (s *Session) expire(ctx context.Context, token string, cause error) (bool, error) {
	s.persist.Lock()
	defer s.persist.Unlock()

	demoted, authenticated := false, false
	if err := s.commit(ctx, func(st *State) error {
		st.Ops[OpVerify] = state.PhaseFailed
		if st.Token != token {
			authenticated = st.Authenticated
			return nil
		}
		st.setToken("")
		demoted = true
		return nil
	}); err != nil {
		return false, err
	}
	if !demoted {
		s.logger.Warn("verify failed after the token changed; dropped",
			slog.String("kind", failure.KindOf(cause).String()),
			slog.String("error", cause.Error()))
		return authenticated, nil
	}

	s.logger.Warn("stored token rejected",
		slog.String("kind", failure.KindOf(cause).String()),
		slog.String("error", cause.Error()))
	if err := s.tokens.Clear(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("clearing stored token failed", slog.String("error", err.Error()))
	}
	return false, ErrSessionExpired
}

// Logout is local only. It always resets the session, then reports a failure to clear the store.
func (s *Session) Logout(ctx context.Context) error {
	s.persist.Lock()
	defer s.persist.Unlock()
	storeErr := s.tokens.Clear(ctx)
	_, err := s.box.Update(ctx, func(st *State) error {
		*st = State{Ops: state.Ops{}}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("admin logged out")
	return storeErr
}

// ClearError resets the error the UI has displayed.
func (s *Session) ClearError(ctx context.Context) error {
	_, err := s.box.Update(ctx, func(st *State) error {
		st.Error = ""
		return nil
	})
	return err
}

// Shutdown stops the owning goroutine.
func (s *Session) Shutdown() {
	s.box.Close()
}

// commit applies a result the remote service already confirmed. Cancellation of ctx is ignored so
// only Shutdown can drop it.
func (s *Session) commit(ctx context.Context, fn func(*State) error) error {
	_, err := s.box.Update(context.WithoutCancel(ctx), fn)
	return err
}
