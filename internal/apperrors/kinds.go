package apperrors

// Fatal reports whether an error of this kind aborts the whole run with no
// partial commit (spec §7: "Fatalness is never inferred from exception
// mechanics; it is a property of the error kind."). Per-account failures
// (priority_eligibility_exhausted) are recovered into conflicts by the
// caller and are therefore not fatal; everything that can leave the run in
// an inconsistent in-memory state is.
var fatalKinds = map[ErrorType]bool{
	ErrorTypeInvalidSnapshot:           true,
	ErrorTypeInsufficientReps:          true,
	ErrorTypeInfeasibleBalance:         true,
	ErrorTypePriorityEligibilityExhaus: false,
	ErrorTypeStaleStateTransition:      false,
	ErrorTypeNotifierUnavailable:       false,
	ErrorTypeStoreUnavailable:          true,
	ErrorTypeValidation:                true,
	ErrorTypeInternal:                  true,
}

// Fatal reports whether err, if an *AppError, is fatal for the current run.
// A non-AppError is treated as fatal: an un-typed error is exactly the case
// the taxonomy exists to eliminate, so it is never silently swallowed.
func Fatal(err error) bool {
	ae, ok := err.(*AppError)
	if !ok {
		return true
	}
	fatal, known := fatalKinds[ae.Type]
	if !known {
		return true
	}
	return fatal
}
