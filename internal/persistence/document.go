package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Document is an entity save document: namespaced sections, each encoded
// independently so a bad section never poisons the others.
type Document map[string]msgpack.RawMessage

// DecodeDocument parses a stored document.
func DecodeDocument(b []byte) (Document, error) {
	doc := make(Document)
	if len(b) == 0 {
		return doc, nil
	}
	if err := msgpack.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("persistence: decode document: %w", err)
	}
	return doc, nil
}

// Encode serializes the document.
func (d Document) Encode() ([]byte, error) {
	return msgpack.Marshal(map[string]msgpack.RawMessage(d))
}

// Put stores rec under Namespace.
func (d Document) Put(rec Record) error {
	b, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("persistence: encode record: %w", err)
	}
	d[Namespace] = b
	return nil
}

// Record reads the downed section.
func (d Document) Record() (Record, error) {
	raw, ok := d[Namespace]
	if !ok {
		return Record{}, ErrNoRecord
	}
	return DecodeRecord(raw)
}

// ReadRecord returns the downed section or the healthy baseline. err is
// only informational; the returned record is always safe to apply.
func (d Document) ReadRecord() (Record, error) {
	rec, err := d.Record()
	if errors.Is(err, ErrNoRecord) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// DocumentStore stores raw save documents by entity.
type DocumentStore interface {
	Save(ctx context.Context, id uuid.UUID, data []byte) error
	Load(ctx context.Context, id uuid.UUID) (data []byte, found bool, err error)
}

// Save writes rec into the stored document of id, keeping other sections.
// An undecodable stored document is replaced.
func Save(ctx context.Context, store DocumentStore, id uuid.UUID, rec Record) error {
	doc := make(Document)
	data, found, err := store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("persistence: load %s: %w", id, err)
	}
	if found {
		if existing, err := DecodeDocument(data); err == nil {
			doc = existing
		}
	}
	if err := doc.Put(rec); err != nil {
		return err
	}
	b, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("persistence: encode document: %w", err)
	}
	if err := store.Save(ctx, id, b); err != nil {
		return fmt.Errorf("persistence: save %s: %w", id, err)
	}
	return nil
}

// Load reads the downed record of id. The returned record is always safe to
// apply: on any failure it is the healthy baseline and err says why.
func Load(ctx context.Context, store DocumentStore, id uuid.UUID) (Record, error) {
	data, found, err := store.Load(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("persistence: load %s: %w", id, err)
	}
	if !found {
		return Record{}, nil
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return doc.ReadRecord()
}
