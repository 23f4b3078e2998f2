package dhan

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// apiErrorBody is the broker's standard error envelope returned alongside
// non-2xx responses.
type apiErrorBody struct {
	ErrorCode string `json:"errorCode"`
	ErrorType string `json:"errorType"`
	ErrorMsg  string `json:"errorMessage"`
}

// checkHTTPStatus maps a non-2xx Dhan response to the closest domain
// sentinel error. op identifies the calling operation so the wrapped error
// carries enough context for logs and alerts without a caller-side switch.
func checkHTTPStatus(statusCode int, body []byte, op string) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.ErrorMsg != "" {
		msg = fmt.Sprintf("%s (%s/%s)", parsed.ErrorMsg, parsed.ErrorType, parsed.ErrorCode)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrAuthentication, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrRateLimit, msg)
	case http.StatusNotFound:
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrNotFound, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return classifyBadRequest(op, msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("dhan: %s: %w: HTTP %d: %s", op, domain.ErrTransport, statusCode, msg)
	default:
		return fmt.Errorf("dhan: %s: HTTP %d: %s", op, statusCode, msg)
	}
}

// classifyBadRequest further narrows a 400/422 response by the calling
// operation, since the broker uses the same status for rejected placements,
// rejected modifications, and rejected cancellations alike. Two cross-cutting
// causes are checked first since they change the caller's recovery action
// (invalidate the funds cache; log-only) regardless of which operation
// triggered them.
func classifyBadRequest(op, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "margin") || strings.Contains(lower, "insufficient fund"):
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrInsufficientFunds, msg)
	case strings.Contains(lower, "market") && (strings.Contains(lower, "closed") || strings.Contains(lower, "not open")):
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrMarketClosed, msg)
	}

	switch op {
	case "place_order", "place_slice_order":
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrOrderPlacement, msg)
	case "modify_order":
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrOrderModification, msg)
	case "cancel_order":
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrOrderCancellation, msg)
	default:
		return fmt.Errorf("dhan: %s: %w: %s", op, domain.ErrValidation, msg)
	}
}
