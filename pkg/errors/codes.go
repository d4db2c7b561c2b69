package errors

import "net/http"

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeTransient              Code = "TRANSIENT_FAILURE"
	CodeSignatureInvalid       Code = "SIGNATURE_INVALID"
)

// Metadata is how a code surfaces over HTTP. ExposeMessage lets the
// caller's message replace PublicMessage in the response body.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

const (
	retryable   = true
	withDetails = true
	exposed     = true
)

var catalog = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, !retryable, "validation failed", withDetails, exposed},
	CodeUnauthorized:  {http.StatusUnauthorized, !retryable, "authentication required", !withDetails, exposed},
	CodeForbidden:     {http.StatusForbidden, !retryable, "access denied", !withDetails, exposed},
	CodeNotFound:      {http.StatusNotFound, !retryable, "resource not found", !withDetails, exposed},
	CodeConflict:      {http.StatusConflict, !retryable, "conflict detected", !withDetails, exposed},
	CodeStateConflict: {http.StatusUnprocessableEntity, !retryable, "state transition disallowed", withDetails, exposed},
	CodeIdempotency:   {http.StatusConflict, !retryable, "idempotency key reused", withDetails, exposed},
	CodeRateLimit:     {http.StatusTooManyRequests, !retryable, "rate limit exceeded", !withDetails, exposed},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", !withDetails, !exposed},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails, !exposed},

	CodeInsufficientBalance:    {http.StatusPaymentRequired, !retryable, "insufficient credits; purchase more credits to continue", withDetails, !exposed},
	CodeConcurrentModification: {http.StatusConflict, retryable, "account was modified concurrently", !withDetails, !exposed},
	CodeTransient:              {http.StatusServiceUnavailable, retryable, "please try again", !withDetails, !exposed},
	CodeSignatureInvalid:       {http.StatusBadRequest, !retryable, "invalid signature", !withDetails, !exposed},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// IsRetryable reports whether the outermost coded error in err may succeed
// on retry. Uncoded errors are treated as internal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}
