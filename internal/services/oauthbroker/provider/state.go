package provider

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/platform/id"
)

const (
	stateIssuer = "oauthbroker"
	// DefaultStateTTL bounds how long a consent page may stay open.
	DefaultStateTTL = 10 * time.Minute
)

// ErrInvalidState is returned for a state that fails verification.
var ErrInvalidState = apperrors.New(apperrors.CodeProviderStateInvalid, "invalid oauth state")

// State is the verified content of an OAuth state parameter.
type State struct {
	Provider  string
	Popup     string
	ExpiresAt time.Time
}

type stateClaims struct {
	jwt.RegisteredClaims
	Popup string `json:"popup"`
}

// StateSigner issues and verifies the OAuth state parameter. The state binds
// a redirect to the provider and popup that started it.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner creates a signer for key. An empty key is replaced with a
// random one, so states only verify within this process.
func NewStateSigner(key []byte, ttl time.Duration) (*StateSigner, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate state key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Sign returns a state for a login started by providerID in popupName.
func (s *StateSigner) Sign(providerID, popupName string) (string, error) {
	nonce, err := id.NewID()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			Subject:   providerID,
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Popup: popupName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of state and returns its content.
func (s *StateSigner) Verify(state string) (State, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return State{}, stateInvalid("state is required", "state")
	}

	var parsed stateClaims
	_, err := jwt.ParseWithClaims(state, &parsed, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return State{}, mapJWTError(err)
	}
	if parsed.Issuer != stateIssuer {
		return State{}, stateInvalid("state issuer mismatch", "issuer")
	}
	if parsed.ExpiresAt == nil {
		return State{}, stateInvalid("state exp is required", "exp")
	}
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(s.now().UTC()) {
		return State{}, stateInvalid("state is expired", "exp")
	}
	if parsed.Subject == "" || parsed.Popup == "" {
		return State{}, stateInvalid("state is missing its binding", "sub")
	}
	return State{Provider: parsed.Subject, Popup: parsed.Popup, ExpiresAt: exp}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return stateInvalid("state signature is invalid", "signature")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return stateInvalid("state alg is invalid", "alg")
	default:
		return apperrors.Wrap(apperrors.CodeProviderStateInvalid, "state is malformed", err)
	}
}

func stateInvalid(message, field string) error {
	return apperrors.WithMetadata(apperrors.CodeProviderStateInvalid, message, map[string]string{"Field": field})
}
