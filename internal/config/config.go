// Package config holds the tunables of the downed-state system and the server
// that hosts it. Values come from TACTICALREVIVE_* environment variables.
package config

import (
	"fmt"
	"time"

	platformconfig "github.com/gqrshy/tacticalrevive/internal/platform/config"
)

const (
	// MinBleedingHealth keeps a downed entity above the host's "dead or dying"
	// threshold so foreign kill events do not fire on knock-down.
	MinBleedingHealth float32 = 1
	// MinInitialInvulnerabilityTicks covers damage pipelines that apply the
	// triggering hit twice.
	MinInitialInvulnerabilityTicks = 2
)

// Revive configures the downed-state lifecycle.
type Revive struct {
	BleedingTimeTicks int     `env:"BLEEDING_TIME_TICKS" envDefault:"1200"`
	BleedingHealth    float32 `env:"BLEEDING_HEALTH" envDefault:"10"`
	RequiredProgress  float32 `env:"REQUIRED_PROGRESS" envDefault:"100"`
	ProgressPerHelper float32 `env:"PROGRESS_PER_HELPER" envDefault:"1"`
	MaxHelperDistance float64 `env:"MAX_HELPER_DISTANCE" envDefault:"3.0"`
	HealthAfterRevive float32 `env:"HEALTH_AFTER_REVIVE" envDefault:"4"`

	// HaltCountdownWhileHelped pauses timeLeft while at least one helper is
	// credited. Off by default.
	HaltCountdownWhileHelped  bool `env:"HALT_COUNTDOWN_WHILE_HELPED" envDefault:"false"`
	ResetProgressOnHelperLoss bool `env:"RESET_PROGRESS_ON_HELPER_LOSS" envDefault:"true"`

	InitialInvulnerabilityTicks int `env:"INITIAL_INVULNERABILITY_TICKS" envDefault:"10"`
	SyncIntervalTicks           int `env:"SYNC_INTERVAL_TICKS" envDefault:"5"`

	DisableMobDamageWhileDowned    bool `env:"DISABLE_MOB_DAMAGE_WHILE_DOWNED" envDefault:"false"`
	DisablePlayerDamageWhileDowned bool `env:"DISABLE_PLAYER_DAMAGE_WHILE_DOWNED" envDefault:"false"`

	ShowBleedingMessage      bool     `env:"SHOW_BLEEDING_MESSAGE" envDefault:"true"`
	Glow                     bool     `env:"GLOW" envDefault:"false"`
	GiveUpHoldTicks          int      `env:"GIVE_UP_HOLD_TICKS" envDefault:"60"`
	TerminateOnDisconnect    bool     `env:"TERMINATE_ON_DISCONNECT" envDefault:"true"`
	RequireOtherParticipants bool     `env:"REQUIRE_OTHER_PARTICIPANTS" envDefault:"true"`
	BypassDamageTypes        []string `env:"BYPASS_DAMAGE_TYPES" envDefault:"out_of_world" envSeparator:","`

	// ForeignDamageCompat installs the classifier for the gun subsystem that
	// fires two hit events per shot. Resolved once at startup.
	ForeignDamageCompat bool `env:"FOREIGN_DAMAGE_COMPAT" envDefault:"true"`
}

// Server configures the hosting process.
type Server struct {
	Addr             string        `env:"ADDR" envDefault:":8080"`
	DBPath           string        `env:"DB_PATH" envDefault:"data/revive.db"`
	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"50ms"`
	AutosaveInterval time.Duration `env:"AUTOSAVE_INTERVAL" envDefault:"30s"`
	Profile          string        `env:"PROFILE" envDefault:"default"`
	InvariantChecks  bool          `env:"INVARIANT_CHECKS" envDefault:"false"`
}

// Config is the full process configuration.
type Config struct {
	Server Server `envPrefix:"TACTICALREVIVE_"`
	Revive Revive `envPrefix:"TACTICALREVIVE_"`
}

// Load parses the environment and validates the result. Adjustments made by
// validation are returned so the caller can log them.
func Load() (Config, []string, error) {
	var cfg Config
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return Config{}, nil, err
	}
	adjusted := cfg.Revive.Validate()
	return cfg, adjusted, nil
}

// Default returns the shipped defaults without reading the environment.
func Default() Config {
	return Config{
		Server: Server{
			Addr:             ":8080",
			DBPath:           "data/revive.db",
			TickInterval:     50 * time.Millisecond,
			AutosaveInterval: 30 * time.Second,
			Profile:          "default",
		},
		Revive: DefaultRevive(),
	}
}

// DefaultRevive returns the shipped lifecycle defaults.
func DefaultRevive() Revive {
	return Revive{
		BleedingTimeTicks:           1200,
		BleedingHealth:              10,
		RequiredProgress:            100,
		ProgressPerHelper:           1,
		MaxHelperDistance:           3.0,
		HealthAfterRevive:           4,
		HaltCountdownWhileHelped:    false,
		ResetProgressOnHelperLoss:   true,
		InitialInvulnerabilityTicks: 10,
		SyncIntervalTicks:           5,
		ShowBleedingMessage:         true,
		GiveUpHoldTicks:             60,
		TerminateOnDisconnect:       true,
		RequireOtherParticipants:    true,
		BypassDamageTypes:           []string{"out_of_world"},
		ForeignDamageCompat:         true,
	}
}

// Validate clamps out-of-range values in place and describes each change.
func (r *Revive) Validate() []string {
	var adjusted []string
	note := func(name string, from, to any) {
		adjusted = append(adjusted, fmt.Sprintf("%s (%v) is out of range, using %v", name, from, to))
	}

	if r.BleedingHealth < MinBleedingHealth {
		note("bleedingHealth", r.BleedingHealth, MinBleedingHealth)
		r.BleedingHealth = MinBleedingHealth
	}
	if r.InitialInvulnerabilityTicks < MinInitialInvulnerabilityTicks {
		note("initialInvulnerabilityTicks", r.InitialInvulnerabilityTicks, MinInitialInvulnerabilityTicks)
		r.InitialInvulnerabilityTicks = MinInitialInvulnerabilityTicks
	}
	if r.BleedingTimeTicks <= 0 {
		note("bleedingTimeTicks", r.BleedingTimeTicks, 1200)
		r.BleedingTimeTicks = 1200
	}
	if r.RequiredProgress <= 0 {
		note("requiredProgress", r.RequiredProgress, 100)
		r.RequiredProgress = 100
	}
	if r.ProgressPerHelper <= 0 {
		note("progressPerHelper", r.ProgressPerHelper, 1)
		r.ProgressPerHelper = 1
	}
	if r.MaxHelperDistance <= 0 {
		note("maxHelperDistance", r.MaxHelperDistance, 3.0)
		r.MaxHelperDistance = 3.0
	}
	if r.HealthAfterRevive <= 0 {
		note("healthAfterRevive", r.HealthAfterRevive, 4)
		r.HealthAfterRevive = 4
	}
	if r.SyncIntervalTicks <= 0 {
		note("syncIntervalTicks", r.SyncIntervalTicks, 5)
		r.SyncIntervalTicks = 5
	}
	if r.GiveUpHoldTicks < 0 {
		note("giveUpHoldTicks", r.GiveUpHoldTicks, 0)
		r.GiveUpHoldTicks = 0
	}
	return adjusted
}

// Bypasses reports whether the damage type always kills outright.
func (r *Revive) Bypasses(damageType string) bool {
	for _, t := range r.BypassDamageTypes {
		if t == damageType {
			return true
		}
	}
	return false
}
