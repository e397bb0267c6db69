// Package capability defines the provenance capability bits and scope masks
// used by delegation grants.
package capability

import (
	"fmt"
	"math"
	"strings"
)

// Scope is a bit-set of capabilities. Bit assignments are wire-stable and
// must match existing deployments.
type Scope uint64

const (
	// Claim permits repository ownership claims.
	Claim Scope = 1 << 0
	// Snapshot permits anchoring source snapshots.
	Snapshot Scope = 1 << 1
	// Attest permits recording attestation digests.
	Attest Scope = 1 << 2
	// Backup permits recording backup locations.
	Backup Scope = 1 << 3
	// Release permits anchoring and governing releases.
	Release Scope = 1 << 4
)

// All is the reserved wildcard sentinel: only this exact mask authorizes
// every capability, including bits assigned after the grant was signed.
// A non-sentinel mask never widens when new bits are added.
const All Scope = math.MaxUint64

// Covers reports whether the scope authorizes the given capability.
// The wildcard check is an exact sentinel comparison, deliberately not a
// superset test.
func (s Scope) Covers(cap Scope) bool {
	if s == All {
		return true
	}
	return s&cap != 0
}

var labels = map[Scope]string{
	Claim:    "CLAIM",
	Snapshot: "SNAPSHOT",
	Attest:   "ATTEST",
	Backup:   "BACKUP",
	Release:  "RELEASE",
}

// Label returns the canonical name of a single capability bit.
func Label(cap Scope) string {
	if name, ok := labels[cap]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint64(cap))
}

// Parse converts a capability label to its bit.
func Parse(label string) (Scope, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "CLAIM":
		return Claim, nil
	case "SNAPSHOT":
		return Snapshot, nil
	case "ATTEST":
		return Attest, nil
	case "BACKUP":
		return Backup, nil
	case "RELEASE":
		return Release, nil
	default:
		return 0, fmt.Errorf("unknown capability %q", label)
	}
}

// ParseMask builds a scope mask from capability labels. The single label
// "ALL" yields the wildcard sentinel.
func ParseMask(labels []string) (Scope, error) {
	var mask Scope
	for _, label := range labels {
		if strings.EqualFold(strings.TrimSpace(label), "ALL") {
			if len(labels) != 1 {
				return 0, fmt.Errorf("ALL cannot be combined with other capabilities")
			}
			return All, nil
		}
		cap, err := Parse(label)
		if err != nil {
			return 0, err
		}
		mask |= cap
	}
	return mask, nil
}

// Labels expands a scope mask into capability labels; the wildcard sentinel
// yields ["ALL"].
func (s Scope) Labels() []string {
	if s == All {
		return []string{"ALL"}
	}
	var out []string
	for _, cap := range []Scope{Claim, Snapshot, Attest, Backup, Release} {
		if s&cap != 0 {
			out = append(out, Label(cap))
		}
	}
	return out
}
