// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldPlayerID    = "player_id"
	FieldRequestID   = "request_id"
	FieldLessonRef   = "lesson_ref"
	FieldPrincipalID = "principal_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Playback fields
	FieldLevel      = "level"
	FieldBandwidth  = "bandwidth"
	FieldResolution = "resolution"
	FieldFragment   = "fragment"
	FieldFaultType  = "fault_type"
	FieldFatal      = "fatal"
	FieldRetries    = "retries"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// URL fields
	FieldURL         = "url"
	FieldManifestURL = "manifest_url"
	FieldStatus      = "status"
)
