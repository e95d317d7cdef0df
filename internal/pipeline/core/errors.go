package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a stage-level failure and drives its disposition.
type ErrorKind string

// Stage-level error kinds.
const (
	KindMissingInput          ErrorKind = "MissingInput"
	KindInvalidProfile        ErrorKind = "InvalidProfile"
	KindMissingCredential     ErrorKind = "MissingCredential"
	KindBudgetExceeded        ErrorKind = "BudgetExceeded"
	KindDownloadFailed        ErrorKind = "DownloadFailed"
	KindUnsupportedPlatform   ErrorKind = "UnsupportedPlatform"
	KindInvalidMediaReference ErrorKind = "InvalidMediaReference"
	KindExternalService       ErrorKind = "ExternalServiceError"
	KindInvalidConfig         ErrorKind = "InvalidConfig"
	KindInternalConsistency   ErrorKind = "InternalConsistency"
	KindCancelled             ErrorKind = "Cancelled"
)

// Process exit codes.
const (
	ExitSuccess   = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

// StageError is the error surface of a stage execution. The originating
// cause is preserved for the manifest and the job summary.
type StageError struct {
	Kind    ErrorKind
	Stage   string
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Cause }

// NewStageError builds a StageError.
func NewStageError(kind ErrorKind, stage, message string, cause error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

// KindOf extracts the error kind, defaulting to ExternalServiceError for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	return KindExternalService
}

// ExitCode maps an error to the process exit code contract: 0 success,
// 130 user-cancelled, 1 anything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if KindOf(err) == KindCancelled {
		return ExitCancelled
	}
	return ExitFailure
}
