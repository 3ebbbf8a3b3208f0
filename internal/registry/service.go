package registry

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openarcade/scoreboard/internal/domain"
	"github.com/openarcade/scoreboard/internal/errors"
)

const (
	tokenAlphabet = "qwertyuiopasdfghjklzxcvbnm1234567890QWERTYUIOPASDFGHJKLZXCVBNM"
	tokenLength   = 16

	defaultTTL = 24 * time.Hour
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	// TTL bounds the lifetime of an issued token. Zero means the default.
	TTL time.Duration
}

// Service maps opaque session tokens to the identities they prove ownership
// of. Tokens expire after the configured TTL, so the registry stays bounded
// under long-running deployment.
type Service struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}

	return &Service{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}
}

// Issue generates a fresh opaque token and stores the token -> identities
// mapping under the configured TTL.
func (s *Service) Issue(ctx context.Context, identities []domain.Identity) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("registry: generate token: %w", err)
	}

	b, err := json.Marshal(identities)
	if err != nil {
		return "", fmt.Errorf("registry: marshal identities: %w", err)
	}

	if err := s.redis.Set(ctx, s.tokenKey(token), b, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("registry: store token: %w", err)
	}

	return token, nil
}

// Lookup returns the identities proved by the token. Unknown and expired
// tokens fail with CodeNotFound.
func (s *Service) Lookup(ctx context.Context, token string) ([]domain.Identity, error) {
	b, err := s.redis.Get(ctx, s.tokenKey(token)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("unknown token"))
	}
	if err != nil {
		return nil, fmt.Errorf("registry: lookup token: %w", err)
	}

	var identities []domain.Identity
	if err := json.Unmarshal(b, &identities); err != nil {
		return nil, fmt.Errorf("registry: unmarshal identities: %w", err)
	}

	return identities, nil
}

func (s *Service) tokenKey(token string) string {
	return fmt.Sprintf("%s:token:%s", s.prefix, token)
}

func randomToken() (string, error) {
	b := make([]byte, tokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = tokenAlphabet[n.Int64()]
	}

	return string(b), nil
}
