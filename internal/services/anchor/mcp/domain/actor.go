package domain

import (
	"fmt"
	"strings"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/actor"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
)

// TokenActorResolver resolves the acting identity from a verified actor
// token. The bare identity fallback is rejected so callers cannot bypass
// token verification once it is configured.
func TokenActorResolver(cfg actor.Config) ActorResolver {
	return func(token, _ string) (identity.Identity, error) {
		if strings.TrimSpace(token) == "" {
			return identity.Identity{}, fmt.Errorf("actor_token is required")
		}
		claims, err := actor.Validate(token, cfg)
		if err != nil {
			return identity.Identity{}, fmt.Errorf("validate actor token: %w", err)
		}
		return claims.Actor, nil
	}
}
