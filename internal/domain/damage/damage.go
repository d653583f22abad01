// Package damage defines the observable contract of incoming hits.
// This package is PURE and must NOT import any infrastructure packages.
package damage

import (
	"strings"

	"github.com/google/uuid"
)

// AttackerKind classifies who dealt a hit.
type AttackerKind int

const (
	AttackerNone AttackerKind = iota
	AttackerMob
	AttackerPlayer
)

func (k AttackerKind) String() string {
	switch k {
	case AttackerMob:
		return "mob"
	case AttackerPlayer:
		return "player"
	default:
		return "none"
	}
}

// Well-known damage types.
const (
	TypeOutOfWorld   = "out_of_world"
	TypeGeneric      = "generic"
	TypeMobAttack    = "mob_attack"
	TypePlayerAttack = "player_attack"
)

// Source is an opaque damage cause token. It is captured at knock-down and
// replayed at termination.
type Source struct {
	Type         string       `json:"type"`
	Attacker     uuid.UUID    `json:"attacker,omitempty"`
	AttackerKind AttackerKind `json:"attacker_kind"`
}

// Namespace returns the part of Type before ':' or "" when unqualified.
func (s Source) Namespace() string {
	ns, _, ok := strings.Cut(s.Type, ":")
	if !ok {
		return ""
	}
	return ns
}

// Path returns the part of Type after ':' or the whole type when unqualified.
func (s Source) Path() string {
	_, path, ok := strings.Cut(s.Type, ":")
	if !ok {
		return s.Type
	}
	return path
}

func (s Source) IsMob() bool    { return s.AttackerKind == AttackerMob }
func (s Source) IsPlayer() bool { return s.AttackerKind == AttackerPlayer }

// Hit is one incoming damage event against Target.
type Hit struct {
	Target uuid.UUID
	Source Source
	Amount float32
	// Lethal is true when applying Amount would bring the target to zero health.
	Lethal bool
}

// Verdict is the outcome of the damage gate.
type Verdict int

const (
	// AllowLethal lets the hit through unchanged; lethal if it is.
	AllowLethal Verdict = iota
	// Suppress cancels the hit.
	Suppress
	// BeginDowned cancels the hit and starts the downed state instead.
	BeginDowned
)

func (v Verdict) String() string {
	switch v {
	case Suppress:
		return "suppress"
	case BeginDowned:
		return "begin-downed"
	default:
		return "allow-lethal"
	}
}
