package apperrors

import "net/http"

// httpStatusByType maps each error kind to the HTTP status cmd/territory-api
// reports it as (spec §7, SPEC_FULL.md's expansion of the error taxonomy to
// an HTTP-facing surface). Kinds that can never reach the API (e.g. a fatal
// snapshot-load error) still get a sensible default rather than a lookup
// failure the handler would have to special-case.
var httpStatusByType = map[ErrorType]int{
	ErrorTypeInvalidSnapshot:           http.StatusUnprocessableEntity,
	ErrorTypeInsufficientReps:          http.StatusUnprocessableEntity,
	ErrorTypeInfeasibleBalance:         http.StatusConflict,
	ErrorTypePriorityEligibilityExhaus: http.StatusConflict,
	ErrorTypeStaleStateTransition:      http.StatusConflict,
	ErrorTypeNotifierUnavailable:       http.StatusBadGateway,
	ErrorTypeStoreUnavailable:          http.StatusServiceUnavailable,
	ErrorTypeValidation:                http.StatusBadRequest,
	ErrorTypeInternal:                  http.StatusInternalServerError,
}

// HTTPStatus maps err to the status code cmd/territory-api should respond
// with. A non-AppError is always internal: the taxonomy has no kind for it.
func HTTPStatus(err error) int {
	ae, ok := err.(*AppError)
	if !ok {
		return http.StatusInternalServerError
	}
	if status, known := httpStatusByType[ae.Type]; known {
		return status
	}
	return http.StatusInternalServerError
}
