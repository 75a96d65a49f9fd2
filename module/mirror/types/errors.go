package types

import "errors"

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrCreateRejected    = errors.New("project creation rejected")
	ErrTokenUnavailable  = errors.New("content access token unavailable")
	ErrCommitFailed      = errors.New("version commit failed")
	ErrNotInitialized    = errors.New("store client not initialized")
	ErrInvalidHeader     = errors.New("incomplete extension header")
	ErrUnknownSource     = errors.New("unknown source")
)
