package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	includeInactive, err := parseOptionalBool(c.Query("include_inactive"))
	if err != nil {
		AbortWithError(c, newValidationError("include_inactive", "invalid_include_inactive", "invalid include_inactive"))
		return
	}

	req := plandomain.ListPlanRequest{}
	if includeInactive != nil && *includeInactive {
		caller, _ := callerFrom(c)
		if !caller.IsAdmin() {
			AbortWithError(c, ErrForbidden)
			return
		}
		req.IncludeInactive = true
	}

	plans, err := s.planSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req plandomain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.planSvc.Create(c.Request.Context(), plandomain.CreatePlanRequest{
		Name:              strings.TrimSpace(req.Name),
		Description:       strings.TrimSpace(req.Description),
		MonthlyPriceCents: req.MonthlyPriceCents,
		AutoRenew:         req.AutoRenew,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

func (s *Server) UpdatePlanPrice(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, plandomain.ErrPlanNotFound)
		return
	}

	var body struct {
		MonthlyPriceCents int64  `json:"monthly_price_cents"`
		EffectiveFrom     string `json:"effective_from"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	effectiveFrom, err := parseOptionalTime(body.EffectiveFrom)
	if err != nil {
		AbortWithError(c, newValidationError("effective_from", "invalid_effective_from", "invalid effective_from"))
		return
	}

	plan, err := s.planSvc.UpdatePrice(c.Request.Context(), plandomain.UpdatePriceRequest{
		PlanID:            id,
		MonthlyPriceCents: body.MonthlyPriceCents,
		EffectiveFrom:     effectiveFrom,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plan})
}
