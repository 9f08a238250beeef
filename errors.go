package lix

import (
	"errors"
	"fmt"

	"github.com/lixdb/lix/internal/contracts"
)

// ErrorKind classifies engine errors per the taxonomy in spec.md §7. It never
// drives control flow via string matching; callers should switch on Kind or
// use errors.As against the concrete wrapped type.
type ErrorKind = contracts.ErrorKind

const (
	KindParse            = contracts.KindParse
	KindValidation       = contracts.KindValidation
	KindConstraint       = contracts.KindConstraint
	KindPlannerInvariant = contracts.KindPlannerInvariant
	KindMaintenance      = contracts.KindMaintenance
	KindPluginFailure    = contracts.KindPluginFailure
	KindIO               = contracts.KindIO
	KindNotFound         = contracts.KindNotFound
)

// Error is the user-visible error type returned from every Host API call
// that fails. It always carries a Kind, a short Reason, and — where known —
// the entity/schema/file/version coordinates and a plan fingerprint useful
// for debugging a specific rewrite.
type Error = contracts.EngineError

// AsEngineError unwraps err into a *Error if possible.
func AsEngineError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func wrapf(kind ErrorKind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &contracts.EngineError{
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
		Cause:  err,
	}
}
