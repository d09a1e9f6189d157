package auth

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/otiai10/jobtrack/internal/logging"
)

// SessionVerifier tries an ordered list of strategies and returns the claims
// of the first one that succeeds
type SessionVerifier struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewSessionVerifier creates a SessionVerifier trying strategies in order
func NewSessionVerifier(logger *zap.Logger, strategies ...Strategy) *SessionVerifier {
	return &SessionVerifier{
		strategies: strategies,
		logger:     logging.OrNop(logger),
	}
}

// NewCookieThenBearer returns the production chain: session cookie first,
// then the Authorization bearer header
func NewCookieThenBearer(logger *zap.Logger, cookieName string, cookies SessionCookieVerifier, tokens TokenVerifier) *SessionVerifier {
	return NewSessionVerifier(logger,
		&CookieStrategy{CookieName: cookieName, Verifier: cookies},
		&BearerStrategy{Verifier: tokens},
	)
}

// Authenticate returns the claims of the first strategy that verifies a
// credential on r, or nil when none does. Verification failures are logged
// and the next strategy is tried.
func (v *SessionVerifier) Authenticate(r *http.Request) *Claims {
	for _, s := range v.strategies {
		claims, err := s.Authenticate(r)
		if err == nil {
			return claims
		}
		if !errors.Is(err, ErrNoCredential) {
			v.logger.Debug("credential rejected",
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
		}
	}
	return nil
}
