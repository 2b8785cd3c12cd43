package session

import "errors"

var (
	// ErrNoActiveConversation is returned by operations that need a
	// conversation to be open.
	ErrNoActiveConversation = errors.New("session: no active conversation")

	// ErrNoUploader is returned when a send carries attachments but no
	// uploader was configured.
	ErrNoUploader = errors.New("session: no uploader configured")

	// ErrStaleResponse marks a history response that arrived for a
	// conversation no longer active. It is absorbed silently; the constant
	// exists for logging and tests.
	ErrStaleResponse = errors.New("session: stale response for inactive conversation")
)
