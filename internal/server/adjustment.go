package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
)

const (
	adjustmentKindCustom        = "custom"
	adjustmentKindGoodwill      = "goodwill"
	adjustmentKindServiceCredit = "service_credit"
	adjustmentKindPromotional   = "promotional"
	adjustmentKindLateFee       = "late_fee"
)

// createAdjustmentRequest covers every adjustment kind; fields not used by
// the selected kind are ignored.
type createAdjustmentRequest struct {
	SubscriptionID string         `json:"subscription_id"`
	Kind           string         `json:"kind"`
	AmountCents    int64          `json:"amount_cents"`
	Type           string         `json:"type"`
	ReasonCode     string         `json:"reason_code"`
	Description    string         `json:"description"`
	EffectiveDate  string         `json:"effective_date"`
	Taxable        bool           `json:"taxable"`
	AutoApply      bool           `json:"auto_apply"`
	Metadata       map[string]any `json:"metadata"`

	// service_credit
	Policy string `json:"policy"`
	Units  int64  `json:"units"`
	NoCap  bool   `json:"no_cap"`

	// service_credit, promotional, late_fee
	Percentage string `json:"percentage"`

	// promotional
	PromoCode string `json:"promo_code"`

	// late_fee
	InvoiceID    string `json:"invoice_id"`
	FixedCents   *int64 `json:"fixed_cents"`
	MinimumCents *int64 `json:"minimum_cents"`
}

func (s *Server) CreateAdjustment(c *gin.Context) {
	var req createAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscriptionID, err := parseSnowflakeID(req.SubscriptionID)
	if err != nil {
		AbortWithError(c, adjustmentdomain.ErrInvalidSubscription)
		return
	}

	ctx := c.Request.Context()
	caller, _ := callerFrom(c)
	actor := caller.Actor()
	description := strings.TrimSpace(req.Description)

	var adj *adjustmentdomain.Adjustment
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case "", adjustmentKindCustom:
		effectiveDate, perr := parseOptionalDate(req.EffectiveDate)
		if perr != nil {
			AbortWithError(c, adjustmentdomain.ErrInvalidEffectiveDate)
			return
		}
		adj, err = s.adjustmentSvc.Create(ctx, adjustmentdomain.CreateRequest{
			SubscriptionID: subscriptionID,
			AmountCents:    req.AmountCents,
			Type:           adjustmentdomain.AdjustmentType(strings.ToUpper(strings.TrimSpace(req.Type))),
			ReasonCode:     adjustmentdomain.ReasonCode(strings.ToUpper(strings.TrimSpace(req.ReasonCode))),
			Description:    description,
			EffectiveDate:  effectiveDate,
			Taxable:        req.Taxable,
			AutoApply:      req.AutoApply,
			CreatedBy:      actor,
			Metadata:       req.Metadata,
		})
	case adjustmentKindGoodwill:
		adj, err = s.adjustmentSvc.CreateGoodwillCredit(ctx, adjustmentdomain.GoodwillCreditRequest{
			SubscriptionID: subscriptionID,
			AmountCents:    req.AmountCents,
			Description:    description,
			CreatedBy:      actor,
			AutoApply:      req.AutoApply,
		})
	case adjustmentKindServiceCredit:
		adj, err = s.adjustmentSvc.CreateServiceCredit(ctx, adjustmentdomain.ServiceCreditRequest{
			SubscriptionID: subscriptionID,
			Policy:         adjustmentdomain.ServiceCreditPolicy(strings.ToUpper(strings.TrimSpace(req.Policy))),
			Units:          req.Units,
			Percentage:     strings.TrimSpace(req.Percentage),
			NoCap:          req.NoCap,
			Description:    description,
			CreatedBy:      actor,
			AutoApply:      req.AutoApply,
		})
	case adjustmentKindPromotional:
		adj, err = s.adjustmentSvc.CreatePromotionalDiscount(ctx, adjustmentdomain.PromotionalDiscountRequest{
			SubscriptionID: subscriptionID,
			Percentage:     strings.TrimSpace(req.Percentage),
			AmountCents:    req.AmountCents,
			PromoCode:      strings.TrimSpace(req.PromoCode),
			Description:    description,
			CreatedBy:      actor,
		})
	case adjustmentKindLateFee:
		invoiceID, perr := parseSnowflakeID(req.InvoiceID)
		if perr != nil {
			AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice_id"))
			return
		}
		lateFee := adjustmentdomain.LateFeeRequest{
			SubscriptionID: subscriptionID,
			InvoiceID:      invoiceID,
			FixedCents:     req.FixedCents,
			MinimumCents:   req.MinimumCents,
			CreatedBy:      actor,
		}
		if pct := strings.TrimSpace(req.Percentage); pct != "" {
			lateFee.Percentage = &pct
		}
		adj, err = s.adjustmentSvc.CreateLateFee(ctx, lateFee)
	default:
		AbortWithError(c, newValidationError("kind", "invalid_kind", "kind must be one of custom, goodwill, service_credit, promotional, late_fee"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": adj})
}

func (s *Server) ListAdjustments(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	req := adjustmentdomain.ListRequest{SubscriptionID: sub.ID}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := adjustmentdomain.Status(strings.ToUpper(raw))
		switch status {
		case adjustmentdomain.StatusPending, adjustmentdomain.StatusApplied, adjustmentdomain.StatusVoided:
			req.Status = &status
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
	}

	adjustments, err := s.adjustmentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": adjustments})
}

func (s *Server) AdjustmentSummary(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	from, err := parseOptionalDate(c.Query("from"))
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalDate(c.Query("to"))
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		AbortWithError(c, newValidationError("to", "invalid_range", "to must not be before from"))
		return
	}

	summary, err := s.adjustmentSvc.Summary(c.Request.Context(), adjustmentdomain.SummaryRequest{
		SubscriptionID: sub.ID,
		From:           from,
		To:             to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) VoidAdjustment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, adjustmentdomain.ErrNotFound)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := bindOptionalJSON(c, &body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	adj, err := s.adjustmentSvc.Void(c.Request.Context(), adjustmentdomain.VoidRequest{
		ID:     id,
		Reason: strings.TrimSpace(body.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": adj})
}
