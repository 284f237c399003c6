package authn

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer    = "curia"
	secretEnv = "CURIA_AUTH_SECRET"

	// leeway absorbs clock skew between the issuing and validating host.
	leeway = 5 * time.Second
)

// ErrInvalidToken indicates the token failed signature or claim validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued by the service. Role and HomeCircle are
// informational; decisions always re-resolve the profile from the store so a
// stale token cannot outlive a role or circle change.
type Claims struct {
	Role       string `json:"role,omitempty"`
	HomeCircle string `json:"home_circle,omitempty"`
	jwt.RegisteredClaims
}

var secretCache struct {
	sync.Mutex
	loaded bool
	value  []byte
}

// signingSecret reads CURIA_AUTH_SECRET once and caches it for the process
// lifetime.
func signingSecret() ([]byte, error) {
	secretCache.Lock()
	defer secretCache.Unlock()
	if !secretCache.loaded {
		secretCache.value = []byte(strings.TrimSpace(os.Getenv(secretEnv)))
		secretCache.loaded = true
	}
	if len(secretCache.value) == 0 {
		return nil, errors.New("auth secret is not configured")
	}
	return secretCache.value, nil
}

// ResetSecretForTests clears the cached secret so tests can swap it.
func ResetSecretForTests() {
	secretCache.Lock()
	defer secretCache.Unlock()
	secretCache.loaded = false
	secretCache.value = nil
}

// GenerateToken signs an HS256 JWT for the given profile.
func GenerateToken(userID, role, homeCircle string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	key, err := signingSecret()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		Role:       strings.ToLower(strings.TrimSpace(role)),
		HomeCircle: strings.TrimSpace(homeCircle),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// tokenParser enforces algorithm, issuer and expiry at parse time.
var tokenParser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(issuer),
	jwt.WithExpirationRequired(),
	jwt.WithIssuedAt(),
	jwt.WithLeeway(leeway),
)

// ParseAndValidate verifies the signature and registered claims. Every
// failure collapses to ErrInvalidToken so callers cannot leak the cause.
func ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	key, err := signingSecret()
	if err != nil {
		return nil, err
	}

	var claims Claims
	parsed, err := tokenParser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
