// Package ingest composes file validation, tag extraction and editing,
// patient matching, and archive upload into one operator-driven ingestion
// session. The wizard state machine gates every step; the orchestrator
// transmits the batch sequentially with per-file fault isolation.
package ingest

import "errors"

// Sentinel errors for wizard transition guards. These indicate contract
// violations by the caller, not operator-visible failures.
var (
	ErrInvalidTransition = errors.New("invalid wizard transition")
	ErrNoValidFiles      = errors.New("no valid files selected")
	ErrTagsIncomplete    = errors.New("required tags missing")
	ErrNoPatientSelected = errors.New("no patient candidate selected")
	ErrUploadRunning     = errors.New("upload already started")
	ErrConfirmRequired   = errors.New("cancelling an active upload requires confirmation")
)
