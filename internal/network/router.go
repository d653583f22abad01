package network

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gqrshy/tacticalrevive/internal/domain/downed"
	"github.com/gqrshy/tacticalrevive/internal/engine"
	"github.com/gqrshy/tacticalrevive/internal/platform/logger"
	"github.com/gqrshy/tacticalrevive/internal/protocol"
)

// ErrUnknownCommand is returned for command types the router does not know.
var ErrUnknownCommand = errors.New("network: unknown command")

// Submitter accepts engine commands from I/O goroutines.
type Submitter interface {
	Submit(cmd engine.Command) error
}

// Lobby places connected entities into the host world. Its methods are
// only called on the tick thread.
type Lobby interface {
	Join(id downed.EntityID)
	Leave(id downed.EntityID)
	Move(id downed.EntityID, pos downed.Position) error
	Respawn(id downed.EntityID) error
}

// Router turns decoded commands into engine commands.
type Router struct {
	engine Submitter
	lobby  Lobby
	logger *logger.Logger
}

// NewRouter creates a router. lobby may be nil, in which case MOVE and
// presence changes are ignored.
func NewRouter(e Submitter, lobby Lobby, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{engine: e, lobby: lobby, logger: log}
}

// Join schedules id's arrival in the world.
func (r *Router) Join(id downed.EntityID) error {
	if r.lobby == nil {
		return nil
	}
	return r.engine.Submit(engine.Exec{Fn: func() { r.lobby.Join(id) }})
}

// Leave schedules a disconnect for id followed by its removal from the
// world, as one command.
func (r *Router) Leave(id downed.EntityID) error {
	cmd := engine.Disconnect{Entity: id}
	if r.lobby != nil {
		cmd.Then = func() { r.lobby.Leave(id) }
	}
	return r.engine.Submit(cmd)
}

// Route maps cmd onto the engine queue.
func (r *Router) Route(cmd protocol.Command) error {
	switch cmd.Type {
	case protocol.CommandRequestHelp:
		p, err := protocol.DecodePayload[protocol.RequestHelpPayload](cmd)
		if err != nil {
			return err
		}
		return r.engine.Submit(engine.RequestHelp{Helper: cmd.EntityID, Target: p.TargetID})

	case protocol.CommandStopHelp:
		return r.engine.Submit(engine.StopHelping{Helper: cmd.EntityID})

	case protocol.CommandRequestGiveUp:
		p, err := protocol.DecodePayload[protocol.RequestGiveUpPayload](cmd)
		if err != nil {
			return err
		}
		return r.engine.Submit(engine.RequestGiveUp{Entity: cmd.EntityID, Holding: p.Holding})

	case protocol.CommandMove:
		p, err := protocol.DecodePayload[protocol.MovePayload](cmd)
		if err != nil {
			return err
		}
		if r.lobby == nil {
			return nil
		}
		id, pos := cmd.EntityID, downed.Position{X: p.X, Y: p.Y, Z: p.Z}
		return r.engine.Submit(engine.Exec{Fn: func() {
			if err := r.lobby.Move(id, pos); err != nil {
				r.logger.Debug("Move ignored", zap.String("entity", id.String()), zap.Error(err))
			}
		}})

	case protocol.CommandAttack:
		p, err := protocol.DecodePayload[protocol.AttackPayload](cmd)
		if err != nil {
			return err
		}
		if p.Amount <= 0 {
			return fmt.Errorf("network: attack amount %v must be positive", p.Amount)
		}
		return r.engine.Submit(engine.Attack{Attacker: cmd.EntityID, Target: p.TargetID, Amount: p.Amount})

	case protocol.CommandRespawn:
		id := cmd.EntityID
		if err := r.engine.Submit(engine.Respawn{Entity: id}); err != nil {
			return err
		}
		if r.lobby == nil {
			return nil
		}
		return r.engine.Submit(engine.Exec{Fn: func() {
			if err := r.lobby.Respawn(id); err != nil {
				r.logger.Debug("Respawn ignored", zap.String("entity", id.String()), zap.Error(err))
			}
		}})

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}
