package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
)

func (s *Server) ListSubscriptionInvoices(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := invoicedomain.ListInvoiceRequest{
		SubscriptionID: sub.ID,
		Pagination:     query.Pagination.Normalize(),
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := invoicedomain.InvoiceStatus(strings.ToUpper(raw))
		if !status.Valid() {
			AbortWithError(c, invoicedomain.ErrInvalidStatus)
			return
		}
		req.Status = &status
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, ok := s.ownedInvoice(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) FinalizeInvoice(c *gin.Context) {
	invoice, ok := s.ownedInvoice(c)
	if !ok {
		return
	}

	detail, err := s.billingSvc.FinalizeInvoice(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

// MarkInvoicePaid records a payment confirmed by the payment gateway integration.
func (s *Server) MarkInvoicePaid(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvoiceNotFound)
		return
	}

	var body struct {
		PaidAt string `json:"paid_at"`
	}
	if err := bindOptionalJSON(c, &body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	paidAt, err := parseOptionalTime(body.PaidAt)
	if err != nil {
		AbortWithError(c, newValidationError("paid_at", "invalid_paid_at", "invalid paid_at"))
		return
	}
	at := s.clock.Now().UTC()
	if paidAt != nil {
		at = *paidAt
	}

	invoice, err := s.invoiceSvc.MarkPaid(c.Request.Context(), id, at)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ownedInvoice(c *gin.Context) (*invoicedomain.InvoiceDetail, bool) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invoicedomain.ErrInvoiceNotFound)
		return nil, false
	}

	invoice, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if err := authorizeCustomer(c, invoice.CustomerID); err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return &invoice, true
}
