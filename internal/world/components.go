package world

import (
	"github.com/google/uuid"
	"github.com/yohamta/donburi"
)

type IdentityData struct {
	ID uuid.UUID
}

type HealthData struct {
	Current float32
	Max     float32
	Dead    bool
}

type PositionData struct {
	X, Y, Z float64
}

// PoseData mirrors the last rendered downed view.
type PoseData struct {
	Downed   bool
	Glow     bool
	TimeLeft int
	Progress float32
}

// EffectsData holds remaining ticks of each downed status effect.
type EffectsData struct {
	Slowness  int
	Weakness  int
	Blindness int
	Glowing   int
}

// Active reports whether any effect is still running.
func (e EffectsData) Active() bool {
	return e.Slowness > 0 || e.Weakness > 0 || e.Blindness > 0 || e.Glowing > 0
}

var (
	Identity = donburi.NewComponentType[IdentityData]()
	Health   = donburi.NewComponentType[HealthData]()
	Position = donburi.NewComponentType[PositionData]()
	Pose     = donburi.NewComponentType[PoseData]()
	Effects  = donburi.NewComponentType[EffectsData]()

	// Online marks connected entities.
	Online = donburi.NewTag()
	// Exempt marks entities that are never downed (spectators, creative mode).
	Exempt = donburi.NewTag()
)
