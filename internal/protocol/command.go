package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Command types accepted from observers.
const (
	CommandRequestHelp   = "REQUEST_HELP"
	CommandStopHelp      = "STOP_HELP"
	CommandRequestGiveUp = "REQUEST_GIVE_UP"
	CommandMove          = "MOVE"
	CommandAttack        = "ATTACK"
	CommandRespawn       = "RESPAWN"
)

// Command is an incoming opaque request from an observer.
type Command struct {
	Type     string          `json:"type"`
	EntityID uuid.UUID       `json:"entity_id"` // who issued it
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type RequestHelpPayload struct {
	TargetID uuid.UUID `json:"target_id"`
}

// RequestGiveUpPayload reports whether the give-up key is held. Releasing it
// resets the server-side hold counter.
type RequestGiveUpPayload struct {
	Holding bool `json:"holding"`
}

type MovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type AttackPayload struct {
	TargetID uuid.UUID `json:"target_id"`
	Amount   float32   `json:"amount"`
}

// EncodeCommand builds an envelope. payload may be nil for bare commands.
func EncodeCommand(t string, entity uuid.UUID, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("protocol: empty command type")
	}
	cmd := Command{Type: t, EntityID: entity}
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s payload: %w", t, err)
		}
		cmd.Payload = pb
	}
	return json.Marshal(cmd)
}

// DecodeCommand parses an envelope.
func DecodeCommand(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, fmt.Errorf("protocol: empty command")
	}
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, fmt.Errorf("protocol: decode command: %w", err)
	}
	if c.Type == "" {
		return Command{}, fmt.Errorf("protocol: command without type")
	}
	return c, nil
}

// DecodePayload unmarshals the command payload into T.
func DecodePayload[T any](c Command) (T, error) {
	var out T
	if len(c.Payload) == 0 {
		return out, fmt.Errorf("protocol: empty payload for %q", c.Type)
	}
	if err := json.Unmarshal(c.Payload, &out); err != nil {
		return out, fmt.Errorf("protocol: decode %s payload: %w", c.Type, err)
	}
	return out, nil
}

// Notice kinds.
const (
	NoticeDowned  = "downed"
	NoticeRevived = "revived"
	NoticeDied    = "died"

	// NoticeJoined is sent to one client only and carries its own entity id.
	NoticeJoined = "joined"
)

// Notice is a broadcast text message about one entity.
type Notice struct {
	Type     string    `json:"type"`
	Kind     string    `json:"kind"`
	EntityID uuid.UUID `json:"entity_id"`
}

// EncodeNotice builds a notice frame.
func EncodeNotice(kind string, entity uuid.UUID) ([]byte, error) {
	return json.Marshal(Notice{Type: "notice", Kind: kind, EntityID: entity})
}
