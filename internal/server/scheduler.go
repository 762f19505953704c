package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"github.com/smallbiznis/billingcore/internal/scheduler"
	"go.uber.org/zap"
)

const schedulerStopTimeout = 30 * time.Second

type jobControlRequest struct {
	// Job narrows start/stop to resuming or pausing a single job.
	Job string `json:"job"`
}

func (s *Server) SchedulerStatus(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) StartScheduler(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	var body jobControlRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var err error
	if job := strings.TrimSpace(body.Job); job != "" {
		err = s.scheduler.Resume(job)
	} else {
		err = s.scheduler.Start()
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

func (s *Server) StopScheduler(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	var body jobControlRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var err error
	if job := strings.TrimSpace(body.Job); job != "" {
		err = s.scheduler.Pause(job)
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), schedulerStopTimeout)
		defer cancel()
		err = s.scheduler.Stop(ctx)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.scheduler.Status()})
}

// RunJob runs one billing job synchronously. The run is detached from the
// request context so a client disconnect does not abort a half-processed batch.
func (s *Server) RunJob(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	name := strings.TrimSpace(c.Param("jobName"))
	if !scheduler.IsBillingJob(name) {
		AbortWithError(c, newValidationError("jobName", "invalid_job_name", "job must be one of "+strings.Join(scheduler.BillingJobs, ", ")))
		return
	}

	result, err := s.scheduler.RunNow(context.WithoutCancel(c.Request.Context()), name)
	if errors.Is(err, scheduler.ErrJobRunning) || errors.Is(err, scheduler.ErrUnknownJob) {
		AbortWithError(c, err)
		return
	}

	status := "completed"
	if err != nil {
		status = "failed"
		s.log.Warn("manual job run failed", zap.String("job", name), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"job":    name,
		"status": status,
		"result": result,
	}})
}

type generateInvoiceRequest struct {
	SubscriptionID            string `json:"subscription_id"`
	PeriodStart               string `json:"period_start"`
	PeriodEnd                 string `json:"period_end"`
	IncludePendingAdjustments *bool  `json:"include_pending_adjustments"`
	DueDate                   string `json:"due_date"`
	TaxPercentage             string `json:"tax_percentage"`
	Finalize                  bool   `json:"finalize"`
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	var body generateInvoiceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscriptionID, err := parseSnowflakeID(body.SubscriptionID)
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidSubscription)
		return
	}
	periodStart, err := parseRequiredDate("period_start", body.PeriodStart)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	periodEnd, err := parseRequiredDate("period_end", body.PeriodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	dueDate, err := parseOptionalDate(body.DueDate)
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvalidDueDate)
		return
	}

	req := billingdomain.GenerateInvoiceRequest{
		SubscriptionID:            subscriptionID,
		PeriodStart:               periodStart,
		PeriodEnd:                 periodEnd,
		IncludePendingAdjustments: body.IncludePendingAdjustments == nil || *body.IncludePendingAdjustments,
		DueDate:                   dueDate,
		Finalize:                  body.Finalize,
	}
	if raw := strings.TrimSpace(body.TaxPercentage); raw != "" {
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			AbortWithError(c, invoicedomain.ErrInvalidTaxPercentage)
			return
		}
		req.TaxPercentage = &pct
	}

	invoice, err := s.billingSvc.GenerateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}
