// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler adapts the global zerolog logger to the slog.Handler interface.
// The supervisor tree (sutureslog) speaks slog; everything else in this
// codebase speaks zerolog, so supervisor events are bridged through here.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

// NewSlogHandler creates a handler backed by the global logger.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{logger: Logger()}
}

// Enabled reports whether the given slog level would be logged.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return slogToZerologLevel(level) >= zerolog.GlobalLevel()
}

// Handle forwards a slog record to zerolog.
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(slogToZerologLevel(record.Level))

	for _, attr := range h.attrs {
		event = addAttr(event, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = addAttr(event, attr)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a new handler with the given attributes pre-applied.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &SlogHandler{logger: h.logger, attrs: combined}
}

// WithGroup returns a handler that prefixes attribute keys with the group name.
func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SlogHandler{
		logger: h.logger.With().Str("group", name).Logger(),
		attrs:  h.attrs,
	}
}

func addAttr(event *zerolog.Event, attr slog.Attr) *zerolog.Event {
	switch attr.Value.Kind() {
	case slog.KindString:
		return event.Str(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return event.Int64(attr.Key, attr.Value.Int64())
	case slog.KindFloat64:
		return event.Float64(attr.Key, attr.Value.Float64())
	case slog.KindBool:
		return event.Bool(attr.Key, attr.Value.Bool())
	case slog.KindDuration:
		return event.Dur(attr.Key, attr.Value.Duration())
	case slog.KindTime:
		return event.Time(attr.Key, attr.Value.Time())
	default:
		return event.Str(attr.Key, fmt.Sprint(attr.Value.Any()))
	}
}

func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// NewSlogLogger returns a *slog.Logger that writes through the global
// zerolog logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}
