package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	customerdomain "github.com/smallbiznis/billingcore/internal/customer/domain"
	"github.com/smallbiznis/billingcore/internal/idempotency"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/proration"
	"github.com/smallbiznis/billingcore/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// abortIdempotency rejects a request the idempotency layer could not admit.
// Store failures fail closed with 503 so a retry never double-applies.
func abortIdempotency(c *gin.Context, err error) {
	status := idempotency.StatusFor(err)
	payload := errorPayload{Type: "idempotency_error", Message: domainMessage(err, "idempotency error")}
	switch status {
	case http.StatusConflict:
		payload.Type = "conflict"
	case http.StatusServiceUnavailable:
		payload = errorPayload{Type: "service_unavailable", Message: "idempotency store unavailable"}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: payload})
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: domainMessage(err, "not found"),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: domainMessage(err, "conflict"),
		}
	case isDomainStateError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "domain_error",
			Message: domainMessage(err, "operation not allowed in current state"),
		}
	case errors.Is(err, idempotency.ErrKeyTooLong),
		errors.Is(err, idempotency.ErrKeyReused):
		return idempotency.StatusFor(err), errorPayload{
			Type:    "idempotency_error",
			Message: domainMessage(err, "idempotency error"),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the access log with the same taxonomy the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if status != http.StatusInternalServerError {
		code = rootCode(err)
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isPlanValidationError(err),
		isCustomerValidationError(err),
		isSubscriptionValidationError(err),
		isInvoiceValidationError(err),
		isAdjustmentValidationError(err),
		isBillingValidationError(err),
		isProrationValidationError(err),
		isSchedulerValidationError(err):
		return true
	default:
		return false
	}
}

func isPlanValidationError(err error) bool {
	return errors.Is(err, plandomain.ErrInvalidName) ||
		errors.Is(err, plandomain.ErrInvalidPrice) ||
		errors.Is(err, plandomain.ErrInvalidCurrency)
}

func isCustomerValidationError(err error) bool {
	return errors.Is(err, customerdomain.ErrInvalidName) ||
		errors.Is(err, customerdomain.ErrInvalidEmail) ||
		errors.Is(err, customerdomain.ErrInvalidID)
}

func isSubscriptionValidationError(err error) bool {
	return errors.Is(err, subscriptiondomain.ErrInvalidCustomer) ||
		errors.Is(err, subscriptiondomain.ErrInvalidPlan) ||
		errors.Is(err, subscriptiondomain.ErrInvalidPrice) ||
		errors.Is(err, subscriptiondomain.ErrInvalidAnchor)
}

func isInvoiceValidationError(err error) bool {
	return errors.Is(err, invoicedomain.ErrInvalidInvoiceID) ||
		errors.Is(err, invoicedomain.ErrInvalidSubscription) ||
		errors.Is(err, invoicedomain.ErrInvalidPeriod) ||
		errors.Is(err, invoicedomain.ErrInvalidDueDate) ||
		errors.Is(err, invoicedomain.ErrInvalidStatus) ||
		errors.Is(err, invoicedomain.ErrInvalidLineItemType) ||
		errors.Is(err, invoicedomain.ErrInvalidLineDescription) ||
		errors.Is(err, invoicedomain.ErrInvalidQuantity) ||
		errors.Is(err, invoicedomain.ErrInvalidTaxPercentage)
}

func isAdjustmentValidationError(err error) bool {
	return errors.Is(err, adjustmentdomain.ErrInvalidSubscription) ||
		errors.Is(err, adjustmentdomain.ErrInvalidType) ||
		errors.Is(err, adjustmentdomain.ErrInvalidReason) ||
		errors.Is(err, adjustmentdomain.ErrInvalidAmount) ||
		errors.Is(err, adjustmentdomain.ErrInvalidEffectiveDate) ||
		errors.Is(err, adjustmentdomain.ErrInvalidPolicy) ||
		errors.Is(err, adjustmentdomain.ErrInvalidPercentage)
}

func isBillingValidationError(err error) bool {
	return errors.Is(err, billingdomain.ErrSamePlan) ||
		errors.Is(err, billingdomain.ErrInvalidEffectiveDate) ||
		errors.Is(err, billingdomain.ErrInvalidCancellationDate) ||
		errors.Is(err, billingdomain.ErrInvalidPeriod)
}

func isProrationValidationError(err error) bool {
	return errors.Is(err, proration.ErrDateNotNormalized) ||
		errors.Is(err, proration.ErrInvalidWindow) ||
		errors.Is(err, proration.ErrDateOutsidePeriod) ||
		errors.Is(err, proration.ErrNegativeAmount) ||
		errors.Is(err, proration.ErrInvalidMonths)
}

func isSchedulerValidationError(err error) bool {
	return errors.Is(err, scheduler.ErrUnknownJob)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, adjustmentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, subscriptiondomain.ErrVersionConflict),
		errors.Is(err, invoicedomain.ErrDuplicateInvoice),
		errors.Is(err, invoicedomain.ErrSequenceConflict),
		errors.Is(err, plandomain.ErrCodeTaken),
		errors.Is(err, billingdomain.ErrPendingPlanChange),
		errors.Is(err, billingdomain.ErrAlreadyCancelled),
		errors.Is(err, idempotency.ErrInFlight),
		errors.Is(err, scheduler.ErrJobRunning),
		errors.Is(err, scheduler.ErrAlreadyRunning),
		errors.Is(err, scheduler.ErrNotRunning):
		return true
	default:
		return false
	}
}

func isDomainStateError(err error) bool {
	switch {
	case errors.Is(err, plandomain.ErrPlanInactive),
		errors.Is(err, subscriptiondomain.ErrNoOpenSegment),
		errors.Is(err, billingdomain.ErrSubscriptionNotActive),
		errors.Is(err, billingdomain.ErrSubscriptionNotBillable),
		errors.Is(err, billingdomain.ErrNoRecipient),
		errors.Is(err, invoicedomain.ErrInvoiceNotDraft),
		errors.Is(err, invoicedomain.ErrInvoiceNotFinal),
		errors.Is(err, invoicedomain.ErrNoLineItems),
		errors.Is(err, adjustmentdomain.ErrNotPending),
		errors.Is(err, adjustmentdomain.ErrInvoiceNotOverdue):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return rootCode(err)
}

// rootCode returns the sentinel code at the start of a wrapped error chain.
func rootCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ":")
	return strings.TrimSpace(code)
}

func domainMessage(err error, fallback string) string {
	if code := rootCode(err); code != "" {
		return strings.ReplaceAll(code, "_", " ")
	}
	return fallback
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "plan_unchanged":
		return "new plan must differ from the current plan"
	case "date_outside_period":
		return "date outside billing period"
	default:
		return "invalid value"
	}
}
