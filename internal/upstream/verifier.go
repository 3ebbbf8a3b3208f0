package upstream

import (
	"context"

	"github.com/openarcade/scoreboard/internal/domain"
)

// Verifier exchanges an authorization code for the verified identities it
// proves. Implementations talk to an external identity provider; callers only
// see the resulting identity list or a failure.
type Verifier interface {
	ExchangeCodeForIdentities(ctx context.Context, code string) ([]domain.Identity, error)
}
