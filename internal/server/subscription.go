package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
)

func (s *Server) CreateSubscription(c *gin.Context) {
	var body struct {
		CustomerID string `json:"customer_id"`
		PlanID     string `json:"plan_id"`
		StartDate  string `json:"start_date"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID, err := parseSnowflakeID(body.CustomerID)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidCustomer)
		return
	}
	planID, err := parseSnowflakeID(body.PlanID)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidPlan)
		return
	}
	startDate, err := parseOptionalDate(body.StartDate)
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidAnchor)
		return
	}

	sub, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		CustomerID: customerID,
		PlanID:     planID,
		StartDate:  startDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

func (s *Server) GetSubscription(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) GetSubscriptionHistory(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	history, err := s.subscriptionSvc.History(c.Request.Context(), sub.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) ChangePlan(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	var body struct {
		NewPlanID       string `json:"new_plan_id"`
		EffectiveDate   string `json:"effective_date"`
		Reason          string `json:"reason"`
		ExpectedVersion *int64 `json:"expected_version"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newPlanID, err := parseSnowflakeID(body.NewPlanID)
	if err != nil {
		AbortWithError(c, newValidationError("new_plan_id", "invalid_new_plan_id", "invalid new_plan_id"))
		return
	}
	effectiveDate, err := parseOptionalDate(body.EffectiveDate)
	if err != nil {
		AbortWithError(c, billingdomain.ErrInvalidEffectiveDate)
		return
	}

	caller, _ := callerFrom(c)
	result, err := s.billingSvc.ChangePlan(c.Request.Context(), billingdomain.ChangePlanRequest{
		SubscriptionID:  sub.ID,
		NewPlanID:       newPlanID,
		EffectiveDate:   effectiveDate,
		Reason:          strings.TrimSpace(body.Reason),
		ExpectedVersion: body.ExpectedVersion,
		ActorID:         caller.Actor(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	var body struct {
		CancellationDate string `json:"cancellation_date"`
		Reason           string `json:"reason"`
		Immediate        *bool  `json:"immediate"`
		ExpectedVersion  *int64 `json:"expected_version"`
	}
	if err := bindOptionalJSON(c, &body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cancellationDate, err := parseOptionalDate(body.CancellationDate)
	if err != nil {
		AbortWithError(c, billingdomain.ErrInvalidCancellationDate)
		return
	}

	caller, _ := callerFrom(c)
	result, err := s.billingSvc.CancelSubscription(c.Request.Context(), billingdomain.CancelRequest{
		SubscriptionID:   sub.ID,
		CancellationDate: cancellationDate,
		Reason:           strings.TrimSpace(body.Reason),
		Immediate:        body.Immediate,
		ExpectedVersion:  body.ExpectedVersion,
		ActorID:          caller.Actor(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ownedSubscription loads the :id subscription and checks the caller owns it.
func (s *Server) ownedSubscription(c *gin.Context) (*subscriptiondomain.Subscription, bool) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrSubscriptionNotFound)
		return nil, false
	}

	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if err := authorizeCustomer(c, sub.CustomerID); err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return sub, true
}
