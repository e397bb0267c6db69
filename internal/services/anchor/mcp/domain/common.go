package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/capability"
	"github.com/ophelios-studio/codequill-contracts/internal/services/anchor/identity"
)

// ActorResolver turns tool-call credentials into an acting identity. When
// token verification is configured the token wins and the fallback identity
// is ignored; otherwise the fallback hex identity is parsed directly.
type ActorResolver func(token, fallback string) (identity.Identity, error)

// PlainActorResolver resolves the acting identity from the bare hex field.
// Used when no actor token verification is configured.
func PlainActorResolver() ActorResolver {
	return func(_, fallback string) (identity.Identity, error) {
		if strings.TrimSpace(fallback) == "" {
			return identity.Identity{}, fmt.Errorf("actor identity is required")
		}
		return identity.ParseIdentity(fallback)
	}
}

func parseIdentityField(name, value string) (identity.Identity, error) {
	parsed, err := identity.ParseIdentity(value)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return parsed, nil
}

func parseContextField(value string) (identity.Context, error) {
	parsed, err := identity.ParseContext(value)
	if err != nil {
		return identity.Context{}, fmt.Errorf("parse context: %w", err)
	}
	return parsed, nil
}

func parseScopeMask(labels []string) (capability.Scope, error) {
	if len(labels) == 0 {
		return 0, fmt.Errorf("at least one capability is required")
	}
	mask, err := capability.ParseMask(labels)
	if err != nil {
		return 0, fmt.Errorf("parse capabilities: %w", err)
	}
	return mask, nil
}

func decodeSignature(value string) ([]byte, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("signature is required")
	}
	sig, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return sig, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
