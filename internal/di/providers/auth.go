package providers

import (
	"github.com/samber/do/v2"

	"github.com/libris/libris-server/internal/auth"
	"github.com/libris/libris-server/internal/config"
	"github.com/libris/libris-server/internal/logger"
	"github.com/libris/libris-server/internal/ratelimit"
)

// AuthKey wraps the token signing key bytes.
type AuthKey []byte

// ProvideAuthKey loads or generates the token signing key.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Auth.TokenKeyPath)
	if err != nil {
		return nil, err
	}

	log.Info("Token key loaded",
		"path", cfg.Auth.TokenKeyPath,
		"access_token_ttl", cfg.Auth.AccessTokenTTL,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	key := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService(key, cfg.Auth.AccessTokenTTL)
}

// AuthRateLimiterHandle wraps the login limiter so its sweeper stops on shutdown.
type AuthRateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *AuthRateLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideAuthRateLimiter provides the per-client limiter for login, register, and setup.
func ProvideAuthRateLimiter(i do.Injector) (*AuthRateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return &AuthRateLimiterHandle{
		KeyedRateLimiter: ratelimit.New(cfg.Auth.RateLimit, cfg.Auth.RateBurst),
	}, nil
}
