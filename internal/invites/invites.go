// Package invites issues recruiting invitation tokens and stores per-user
// preferences in Redis. Expiry is enforced by the server-side key TTL.
package invites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/validation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an invitation stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

const (
	inviteKeyPrefix = "invite:"
	prefsKeyPrefix  = "prefs:"
)

var inviteSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["inviterId", "email"],
	"properties": {
		"inviterId": {"type": "string", "minLength": 1},
		"email":     {"type": "string", "format": "email"}
	}
}`)

// Invite is a pending recruiting invitation.
type Invite struct {
	Token     string    `json:"token"`
	InviterID string    `json:"inviterId"`
	Email     string    `json:"email"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service manages invitations and preferences.
type Service struct {
	client   redis.Cmdable
	ttl      time.Duration
	baseURL  string
	now      func() time.Time
	newToken func() string
	logger   logger.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithBaseURL sets the signup page the invite link points at.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = u }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTokenGenerator(gen func() string) Option {
	return func(s *Service) { s.newToken = gen }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Service) { s.logger = log }
}

func NewService(client redis.Cmdable, opts ...Option) *Service {
	s := &Service{
		client:   client,
		ttl:      DefaultTTL,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: uuid.NewString,
		logger:   logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func inviteKey(token string) string { return inviteKeyPrefix + token }
func prefsKey(userID string) string { return prefsKeyPrefix + userID }

// Create issues a single-use invitation from inviterID to email.
func (s *Service) Create(ctx context.Context, inviterID, email string) (*Invite, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	res, err := inviteSchema.Validate(map[string]interface{}{"inviterId": inviterID, "email": email})
	if err != nil {
		return nil, apperrors.NewValidationError(map[string]string{"invite": err.Error()})
	}
	if !res.Valid {
		return nil, apperrors.NewValidationError(res.FieldMap())
	}

	now := s.now()
	inv := &Invite{
		Token:     s.newToken(),
		InviterID: inviterID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if s.baseURL != "" {
		inv.URL = s.baseURL + "?token=" + url.QueryEscape(inv.Token)
	}

	payload, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("marshal invite: %w", err)
	}
	if err := s.client.Set(ctx, inviteKey(inv.Token), payload, s.ttl).Err(); err != nil {
		return nil, apperrors.NewPersistenceError("create_invite", err)
	}

	s.logger.Info("invite created", map[string]interface{}{
		"inviterId": inviterID,
		"expiresAt": inv.ExpiresAt.Format(time.RFC3339),
	})
	return inv, nil
}

// Lookup returns an invitation without consuming it.
func (s *Service) Lookup(ctx context.Context, token string) (*Invite, error) {
	raw, err := s.client.Get(ctx, inviteKey(token)).Bytes()
	return s.decode(token, "lookup_invite", raw, err)
}

// Redeem consumes an invitation. A token can be redeemed once.
func (s *Service) Redeem(ctx context.Context, token string) (*Invite, error) {
	raw, err := s.client.GetDel(ctx, inviteKey(token)).Bytes()
	inv, err := s.decode(token, "redeem_invite", raw, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("invite redeemed", map[string]interface{}{"inviterId": inv.InviterID})
	return inv, nil
}

func (s *Service) decode(token, op string, raw []byte, err error) (*Invite, error) {
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewInviteNotFoundError(token)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	var inv Invite
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, apperrors.NewPersistenceError(op, fmt.Errorf("decode invite: %w", err))
	}
	return &inv, nil
}

// SetPreference stores one preference for userID.
func (s *Service) SetPreference(ctx context.Context, userID, key, value string) error {
	if userID == "" || key == "" {
		return apperrors.NewValidationError(map[string]string{"key": "userId and key are required"})
	}
	if err := s.client.HSet(ctx, prefsKey(userID), key, value).Err(); err != nil {
		return apperrors.NewPersistenceError("set_preference", err)
	}
	return nil
}

// Preferences returns every preference stored for userID.
func (s *Service) Preferences(ctx context.Context, userID string) (map[string]string, error) {
	prefs, err := s.client.HGetAll(ctx, prefsKey(userID)).Result()
	if err != nil {
		return nil, apperrors.NewPersistenceError("get_preferences", err)
	}
	return prefs, nil
}
