package api

import (
	"errors"

	domrepo "FxSignal/internal/domain/repository"
	"FxSignal/internal/service/ratelimit"
	"FxSignal/internal/service/scoring"
	"FxSignal/internal/usecase"
	xhttp "FxSignal/pkg/http"
)

// toAppError maps usecase errors onto the response envelope. Rate limits are
// checked before transport errors because the latter wrap them.
func toAppError(err error) *xhttp.AppError {
	var (
		rej *usecase.RejectionError
		te  *usecase.TransportError
	)
	switch {
	case errors.As(err, &rej):
		code := "ERR_LOW_CONFIDENCE"
		if errors.Is(err, scoring.ErrWeakSignal) {
			code = "ERR_WEAK_SIGNAL"
		}
		return xhttp.UnprocessableError(code, rej.Reason.Error()).
			WithParam("confidence", rej.Confidence).
			WithParam("strength", rej.Strength).
			WithParam("reasoning", rej.Rationale).
			WithError(err)
	case errors.Is(err, ratelimit.ErrKeysExhausted), errors.Is(err, ratelimit.ErrUpstreamLimited):
		return xhttp.TooManyRequestsError("market data rate limit reached").WithError(err)
	case errors.As(err, &te):
		return xhttp.BadGatewayError(te.Error()).WithParam("op", te.Op).WithError(err)
	case errors.Is(err, domrepo.ErrSignalNotFound):
		return xhttp.NotFoundErrorf("signal not found").WithError(err)
	case errors.Is(err, usecase.ErrSignalClosed):
		return xhttp.ConflictError("signal already resolved").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
