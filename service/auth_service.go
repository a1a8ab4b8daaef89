package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/layer-3/nostr-gate/adapters/signature"
	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
)

const (
	DefaultSessionTTL     = 24 * time.Hour
	DefaultProfileTimeout = 5 * time.Second
)

// Enrichment outcomes reported to the Observer
const (
	EnrichmentFound       = "found"
	EnrichmentAbsent      = "absent"
	EnrichmentTimeout     = "timeout"
	EnrichmentUnavailable = "unavailable"
	EnrichmentSkipped     = "skipped"
)

// Observer receives auth flow events, typically to feed metrics
type Observer interface {
	ChallengeIssued(kind core.ChallengeKind)
	VerificationFinished(reason string)
	EnrichmentFinished(outcome string)
}

type nopObserver struct{}

func (nopObserver) ChallengeIssued(core.ChallengeKind) {}
func (nopObserver) VerificationFinished(string)        {}
func (nopObserver) EnrichmentFinished(string)          {}

// VerifyResult is returned to a client whose assertion checked out
type VerifyResult struct {
	Pubkey    string
	Scheme    string
	Metadata  core.Profile
	Token     string
	ExpiresAt time.Time
}

// Option configures an AuthService
type Option func(*AuthService)

// WithSessionTTL sets the lifetime of issued credentials
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *AuthService) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithProfileTimeout bounds the metadata lookup done during verification
func WithProfileTimeout(timeout time.Duration) Option {
	return func(s *AuthService) {
		if timeout > 0 {
			s.profileTimeout = timeout
		}
	}
}

// WithClock replaces the time source used for issuing sessions
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.now = now
	}
}

// WithObserver attaches an Observer
func WithObserver(o Observer) Option {
	return func(s *AuthService) {
		if o != nil {
			s.observer = o
		}
	}
}

// AuthService handles authentication business logic
type AuthService struct {
	store     ports.ChallengeStore
	verifier  *EventVerifier
	profiles  ports.ProfileFetcher
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	observer  Observer
	logger    *zap.Logger

	sessionTTL     time.Duration
	profileTimeout time.Duration
	now            func() time.Time
}

// NewAuthService creates a new authentication service. profiles and eventPub may be nil.
func NewAuthService(
	store ports.ChallengeStore,
	verifier *EventVerifier,
	profiles ports.ProfileFetcher,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuthService{
		store:          store,
		verifier:       verifier,
		profiles:       profiles,
		tokenizer:      tokenizer,
		eventPub:       eventPub,
		observer:       nopObserver{},
		logger:         logger,
		sessionTTL:     DefaultSessionTTL,
		profileTimeout: DefaultProfileTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateChallenge issues a fresh challenge of the given kind
func (s *AuthService) CreateChallenge(ctx context.Context, kind core.ChallengeKind) (*core.Challenge, error) {
	if kind == "" {
		kind = core.ChallengeKindLogin
	}

	challenge, err := s.store.Create(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	s.observer.ChallengeIssued(kind)
	return challenge, nil
}

// VerifyAssertion checks a signed event, marks its challenge verified and
// issues a session credential. Metadata lookup failures never fail the call.
func (s *AuthService) VerifyAssertion(ctx context.Context, event *core.Event) (*VerifyResult, error) {
	verification, err := s.verifier.Verify(ctx, event)
	if err != nil {
		s.observer.VerificationFinished(core.Reason(err))
		return nil, err
	}

	metadata := s.fetchProfile(ctx, verification.Pubkey, verification.Scheme)

	token, session, err := s.issue(verification.Pubkey, verification.Scheme)
	if err != nil {
		s.observer.VerificationFinished(core.Reason(err))
		return nil, err
	}

	if s.eventPub != nil {
		if err := s.eventPub.PublishVerified(ctx, verification.ChallengeID, session.Pubkey, session.ID, session.IssuedAt); err != nil {
			s.logger.Warn("failed to publish verified event",
				zap.String("pubkey", session.Pubkey),
				zap.Error(err),
			)
		}
	}

	s.observer.VerificationFinished("ok")
	s.logger.Info("challenge verified",
		zap.String("pubkey", session.Pubkey),
		zap.String("scheme", session.Scheme),
	)

	return &VerifyResult{
		Pubkey:    session.Pubkey,
		Scheme:    session.Scheme,
		Metadata:  metadata,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// ChallengeStatus reports the poll-visible state of a challenge and, once
// verified, the identity that satisfied it.
func (s *AuthService) ChallengeStatus(ctx context.Context, id string) (core.ChallengeStatus, string, error) {
	challenge, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrChallengeNotFound) {
			return core.StatusNotFound, "", nil
		}
		return "", "", err
	}
	return challenge.Status(), challenge.Pubkey, nil
}

// ValidateSession returns the session carried by a credential
func (s *AuthService) ValidateSession(_ context.Context, token string) (*core.Session, error) {
	return s.tokenizer.TokenToSession(token)
}

func (s *AuthService) issue(pubkey, scheme string) (string, *core.Session, error) {
	now := s.now()
	session := &core.Session{
		ID:        uuid.New().String(),
		Pubkey:    pubkey,
		Scheme:    scheme,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session token: %w", err)
	}
	return token, session, nil
}

// fetchProfile looks up metadata within the profile timeout. Only Nostr keys
// publish profiles, so other schemes skip the lookup.
func (s *AuthService) fetchProfile(ctx context.Context, pubkey, scheme string) core.Profile {
	if s.profiles == nil || scheme != signature.SchemeSchnorr {
		s.observer.EnrichmentFinished(EnrichmentSkipped)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.profileTimeout)
	defer cancel()

	profile, err := s.profiles.FetchProfile(ctx, pubkey)
	switch {
	case errors.Is(err, core.ErrMetadataFetchTimeout):
		s.observer.EnrichmentFinished(EnrichmentTimeout)
		s.logger.Debug("profile lookup timed out", zap.String("pubkey", pubkey))
		return nil
	case err != nil:
		s.observer.EnrichmentFinished(EnrichmentUnavailable)
		s.logger.Warn("profile lookup failed", zap.String("pubkey", pubkey), zap.Error(err))
		return nil
	case profile == nil:
		s.observer.EnrichmentFinished(EnrichmentAbsent)
		return nil
	}

	s.observer.EnrichmentFinished(EnrichmentFound)
	return profile
}
