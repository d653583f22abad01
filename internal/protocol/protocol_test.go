package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestEncodeUpdateLayout(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	got := EncodeUpdate(Update{EntityID: id, Bleeding: true, TimeLeft: 300, ReviveProgress: 42})

	want := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
		// bleeding
		0x01,
		// 300 as uvarint
		0xac, 0x02,
		// 42.0 as float32
		0x42, 0x28, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded\n got % x\nwant % x", got, want)
	}

	u, err := DecodeUpdate(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.EntityID != id || !u.Bleeding || u.TimeLeft != 300 || u.ReviveProgress != 42 {
		t.Errorf("decoded %+v", u)
	}
}

func TestEncodeUpdateSmallCountdown(t *testing.T) {
	b := EncodeUpdate(Update{EntityID: uuid.New(), TimeLeft: 0})
	if len(b) != 16+1+1+4 {
		t.Errorf("len = %d, want 22", len(b))
	}
	if b[16] != 0 {
		t.Errorf("bleeding byte = %d, want 0", b[16])
	}
}

func TestDecodeUpdateRejectsMalformed(t *testing.T) {
	valid := EncodeUpdate(Update{EntityID: uuid.New(), Bleeding: true, TimeLeft: 1200, ReviveProgress: 1})

	if _, err := DecodeUpdate(valid[:10]); !errors.Is(err, ErrShortPacket) {
		t.Errorf("short: %v", err)
	}
	if _, err := DecodeUpdate(valid[:len(valid)-1]); !errors.Is(err, ErrShortPacket) {
		t.Errorf("truncated float: %v", err)
	}
	if _, err := DecodeUpdate(append(valid, 0)); !errors.Is(err, ErrTrailing) {
		t.Errorf("trailing: %v", err)
	}

	bad := bytes.Clone(valid)
	bad[16] = 7
	if _, err := DecodeUpdate(bad); !errors.Is(err, ErrBadBool) {
		t.Errorf("bool: %v", err)
	}
}

func TestCommandEnvelope(t *testing.T) {
	actor, target := uuid.New(), uuid.New()
	b, err := EncodeCommand(CommandRequestHelp, actor, RequestHelpPayload{TargetID: target})
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := DecodeCommand(b)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Type != CommandRequestHelp || cmd.EntityID != actor {
		t.Errorf("envelope = %+v", cmd)
	}
	p, err := DecodePayload[RequestHelpPayload](cmd)
	if err != nil {
		t.Fatal(err)
	}
	if p.TargetID != target {
		t.Errorf("target = %s, want %s", p.TargetID, target)
	}

	bare, _ := EncodeCommand(CommandStopHelp, actor, nil)
	cmd, _ = DecodeCommand(bare)
	if _, err := DecodePayload[RequestHelpPayload](cmd); err == nil {
		t.Error("expected empty payload error")
	}

	if _, err := DecodeCommand([]byte(`{"entity_id":"` + actor.String() + `"}`)); err == nil {
		t.Error("expected missing type error")
	}
	if _, err := DecodeCommand(nil); err == nil {
		t.Error("expected empty command error")
	}
}
