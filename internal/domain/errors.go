package domain

import "errors"

var (
	ErrEmptyInput            = errors.New("description is empty")
	ErrMissingReporter       = errors.New("reporter ID is required")
	ErrQuotaExhausted        = errors.New("monthly AI classification quota exhausted")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrPersistenceFailed     = errors.New("incident could not be saved")
	ErrClassifierUnreachable = errors.New("classifier unreachable")
	ErrMalformedResponse     = errors.New("classifier response malformed")
	ErrSubmissionInProgress  = errors.New("a classification is already in progress")
	ErrIncidentNotFound      = errors.New("incident not found")
	ErrIncompleteRecord      = errors.New("incident record is incomplete")
)
