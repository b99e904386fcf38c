// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by lessoncast spans.
const (
	PlayerIDKey   = "lessoncast.player_id"
	SessionIDKey  = "lessoncast.session_id"
	LessonRefKey  = "lessoncast.lesson_ref"
	SourceMIMEKey = "lessoncast.source_mime"
	VariantsKey   = "hls.variants"
	ErrorKindKey  = "error.kind"
)

// SessionAttributes identify a playback session.
func SessionAttributes(playerID, sessionID, lessonRef string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PlayerIDKey, playerID),
		attribute.String(SessionIDKey, sessionID),
		attribute.String(LessonRefKey, lessonRef),
	}
}

// RecordError marks span as failed with an error kind.
func RecordError(span trace.Span, kind string, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(ErrorKindKey, kind))
	span.SetStatus(codes.Error, err.Error())
}
