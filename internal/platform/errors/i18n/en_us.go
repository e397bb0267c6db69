package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
var enUSMessages = map[Code]string{
	"UNKNOWN": "An unexpected error occurred.",

	"DELEGATION_INVALID_IDENTITY":  "A principal and relayer identity are required.",
	"DELEGATION_INVALID_CONTEXT":   "A workspace context is required.",
	"DELEGATION_BAD_EXPIRY":        "The grant expiry must be in the future.",
	"DELEGATION_SIGNATURE_INVALID": "The request signature does not match the principal.",
	"DELEGATION_SIGNATURE_EXPIRED": "The signed request missed its deadline; re-sign with a later deadline.",
	"DELEGATION_UNAUTHORIZED":      "Only the principal may perform this operation directly.",

	"WORKSPACE_EMPTY_NAME":   "A workspace name is required.",
	"WORKSPACE_EXISTS":       "A workspace already exists for this context.",
	"WORKSPACE_NOT_A_MEMBER": "{{.Identity}} is not a member of this workspace.",

	"RELEASE_EMPTY_ID":           "A release identifier is required.",
	"RELEASE_EMPTY_MANIFEST":     "A release manifest reference is required.",
	"RELEASE_NO_SNAPSHOTS":       "A release must reference at least one anchored snapshot.",
	"RELEASE_ID_TAKEN":           "Release {{.ReleaseID}} already exists.",
	"RELEASE_INVALID_STATUS":     "Governance status must be ACCEPTED or REJECTED.",
	"RELEASE_STATUS_FINAL":       "Governance has already ruled on release {{.ReleaseID}}.",
	"RELEASE_REVOKED":            "Release {{.ReleaseID}} has been revoked.",
	"RELEASE_NOT_REVOKED":        "Release {{.ReleaseID}} must be revoked before it can be superseded.",
	"RELEASE_ALREADY_SUPERSEDED": "Release {{.ReleaseID}} is already superseded.",
	"RELEASE_PROJECT_MISMATCH":   "Both releases must belong to the same project.",
	"RELEASE_AUTHOR_MISMATCH":    "The supplied author does not match the release author.",
	"RELEASE_UNAUTHORIZED":       "The caller has no standing to govern this release.",

	"REGISTRY_INVALID_REF":        "A content reference is required.",
	"REGISTRY_UNAUTHORIZED":       "The caller is not authorized to act for this owner.",
	"REPOSITORY_CLAIM_TAKEN":      "Repository {{.RepoRef}} is already claimed in this workspace.",
	"SNAPSHOT_MISSING":            "Snapshot {{.RootRef}} is not anchored.",
	"SNAPSHOT_DIGEST_MISMATCH":    "The snapshot root does not match the manifest digest.",
	"ATTESTATION_DIGEST_INVALID":  "An attestation digest is required.",

	"ACTOR_TOKEN_INVALID":  "The actor token could not be verified.",
	"ACTOR_TOKEN_EXPIRED":  "The actor token has expired.",
	"ACTOR_TOKEN_MISMATCH": "The actor token was issued for a different audience.",

	"NOT_FOUND": "The requested record does not exist.",
}
