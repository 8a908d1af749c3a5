package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Emit writes a single JSON line to <Dir>/events.jsonl when observation is enabled.
// Each line carries the event name and an RFC3339Nano UTC time besides fields.
func Emit(name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}

	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("telemetry: mkdir")
		return
	}

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("telemetry: open")
		return
	}
	defer f.Close()

	w := zerolog.New(f)
	w.Log().
		Str("time", time.Now().UTC().Format(time.RFC3339Nano)).
		Str("event", name).
		Fields(fields).
		Send()
}

// EmitTurn is Emit with the turn ID from ctx added as "turn_id".
func EmitTurn(ctx context.Context, name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}
	m := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	turnID, _ := TurnIDFromContext(ctx)
	m["turn_id"] = turnID
	Emit(name, m)
}
