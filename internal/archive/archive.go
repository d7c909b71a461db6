package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/duckmesh/sqlagent/internal/agent"
	"github.com/duckmesh/sqlagent/internal/observability"
	"github.com/duckmesh/sqlagent/internal/storage"
)

const contentType = "application/vnd.apache.parquet"

// Archiver writes one parquet object per finished run.
type Archiver struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

func New(store storage.ObjectStore, logger *slog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Archiver{store: store, logger: logger}, nil
}

// Record satisfies agent.Recorder.
func (a *Archiver) Record(ctx context.Context, state agent.State) error {
	err := a.write(ctx, state)
	observability.ObserveArchiveWrite(err != nil)
	return err
}

func (a *Archiver) write(ctx context.Context, state agent.State) error {
	finishedAt := state.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	key, err := storage.BuildSessionPath(state.SessionID, finishedAt)
	if err != nil {
		return err
	}
	record, err := NewRecord(state)
	if err != nil {
		return err
	}
	data, err := EncodeRecords([]Record{record})
	if err != nil {
		return err
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: contentType})
	if err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "session archived",
		append(observability.LogAttrs(ctx), "key", info.Key, "bytes", len(data))...)
	return nil
}

// Store is the object store sessions are written to.
func (a *Archiver) Store() storage.ObjectStore {
	return a.store
}

// List returns the archived sessions of one UTC day.
func (a *Archiver) List(ctx context.Context, day time.Time) ([]storage.ObjectInfo, error) {
	return a.store.List(ctx, storage.SessionDatePrefix(day))
}

func (a *Archiver) Load(ctx context.Context, key string) ([]Record, error) {
	reader, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read archived session %q: %w", key, err)
	}
	return DecodeRecords(data)
}
