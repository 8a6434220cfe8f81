package model

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures so callers can decide whether to skip,
// roll back or report.
var (
	// ErrTagValidation marks missing/unreadable inputs and bad config values.
	ErrTagValidation = goerr.NewTag("validation")
	// ErrTagResource marks write failures such as a full disk or denied permission.
	ErrTagResource = goerr.NewTag("resource")
	// ErrTagIntegrity marks an index that failed structural validation.
	ErrTagIntegrity = goerr.NewTag("integrity")
)
