package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	adjustmentservice "github.com/smallbiznis/billingcore/internal/adjustment/service"
	billingservice "github.com/smallbiznis/billingcore/internal/billing/service"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	customerdomain "github.com/smallbiznis/billingcore/internal/customer/domain"
	customerrepo "github.com/smallbiznis/billingcore/internal/customer/repository"
	customerservice "github.com/smallbiznis/billingcore/internal/customer/service"
	"github.com/smallbiznis/billingcore/internal/idempotency"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/billingcore/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/billingcore/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/billingcore/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/billingcore/internal/observability/metrics"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	planservice "github.com/smallbiznis/billingcore/internal/plan/service"
	emailmocks "github.com/smallbiznis/billingcore/internal/providers/email/mocks"
	"github.com/smallbiznis/billingcore/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/billingcore/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/billingcore/internal/subscription/service"
	"github.com/smallbiznis/billingcore/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	engine   *gin.Engine
	sched    *scheduler.Scheduler
	customer customerdomain.Customer
	other    customerdomain.Customer
	basic    *plandomain.Plan
	pro      *plandomain.Plan
	sub      *subscriptiondomain.Subscription
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorPayload   `json:"error"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	conn := dbtest.Open(t,
		&plandomain.Plan{}, &plandomain.PriceHistory{},
		&customerdomain.Customer{},
		&subscriptiondomain.Subscription{}, &subscriptiondomain.PlanHistory{},
		&invoicedomain.Invoice{}, &invoicedomain.InvoiceLineItem{},
		&adjustmentdomain.Adjustment{},
		&ledgerdomain.JournalEntry{}, &ledgerdomain.JournalLine{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 4, 11, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	plans := planservice.NewService(planservice.ServiceParam{DB: conn, Log: log, GenID: node, Clock: clk, BillingCfg: cfg})
	customers := customerservice.New(customerservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: customerrepo.Provide()})
	subscriptions := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: subscriptionrepo.Provide(), PlanSvc: plans, CustomerSvc: customers,
	})
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{DB: conn, Log: log, GenID: node, Clock: clk, BillingCfg: cfg})
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: conn, Log: log, GenID: node, Clock: clk})
	adjustments := adjustmentservice.NewService(adjustmentservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk, BillingCfg: cfg,
		SubscriptionSvc: subscriptions, InvoiceSvc: invoices, Ledger: ledger,
	})
	mailer := emailmocks.NewMockProvider(gomock.NewController(t))
	mailer.EXPECT().SendTemplate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	billing := billingservice.NewService(billingservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk, BillingCfg: cfg,
		SubscriptionRepo: subscriptionrepo.Provide(),
		PlanSvc:          plans,
		CustomerSvc:      customers,
		InvoiceSvc:       invoices,
		AdjustmentSvc:    adjustments,
		Ledger:           ledger,
		Email:            mailer,
	})

	sched, err := scheduler.New(scheduler.Params{Log: log, Clock: clk})
	require.NoError(t, err)
	require.NoError(t, scheduler.RegisterBillingJobs(sched, billing, cfg.Get().Jobs))

	engine := NewEngine(config.Config{}, log, obsmetrics.NewHTTPMetricsWith(prometheus.NewRegistry(), obsmetrics.Config{}))
	srv := NewServer(ServerParams{
		Gin:             engine,
		Log:             log,
		Clock:           clk,
		BillingCfg:      cfg,
		BillingSvc:      billing,
		PlanSvc:         plans,
		CustomerSvc:     customers,
		SubscriptionSvc: subscriptions,
		InvoiceSvc:      invoices,
		AdjustmentSvc:   adjustments,
		Idempotency:     idempotency.NewMemoryStore(),
		Scheduler:       sched,
	})
	srv.RegisterBillingRoutes()
	srv.RegisterSchedulerRoutes()

	ts := &testServer{engine: engine, sched: sched}
	ts.basic, err = plans.Create(ctx, plandomain.CreatePlanRequest{Name: "Basic", MonthlyPriceCents: 999})
	require.NoError(t, err)
	ts.pro, err = plans.Create(ctx, plandomain.CreatePlanRequest{Name: "Pro", MonthlyPriceCents: 1499})
	require.NoError(t, err)
	ts.customer, err = customers.Create(ctx, customerdomain.CreateCustomerRequest{Name: "Asha", Email: "asha@example.com"})
	require.NoError(t, err)
	ts.other, err = customers.Create(ctx, customerdomain.CreateCustomerRequest{Name: "Ravi", Email: "ravi@example.com"})
	require.NoError(t, err)
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	ts.sub, err = subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		CustomerID: ts.customer.ID, PlanID: ts.basic.ID, StartDate: &start,
	})
	require.NoError(t, err)
	return ts
}

type identity struct {
	customerID snowflake.ID
	admin      bool
}

func (ts *testServer) owner() identity { return identity{customerID: ts.customer.ID} }

func (ts *testServer) stranger() identity { return identity{customerID: ts.other.ID} }

func admin() identity { return identity{admin: true} }

func (ts *testServer) do(t *testing.T, who *identity, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		if who.customerID != 0 {
			req.Header.Set(HeaderCustomerID, who.customerID.String())
		}
		if who.admin {
			req.Header.Set(HeaderRole, RoleAdmin)
		}
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out), w.Body.String())
	}
	return env
}

func ptr[T any](v T) *T { return &v }

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBillingRoutesRequireCaller(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, nil, http.MethodGet, "/billing/plans", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, nil, http.MethodGet, "/billing/plans", nil, HeaderCustomerID, "not-a-number")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var plans []plandomain.PlanView
	w = ts.do(t, ptr(ts.owner()), http.MethodGet, "/billing/plans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &plans)
	require.Len(t, plans, 2)
	assert.NotEmpty(t, plans[0].FormattedPrice)

	w = ts.do(t, ptr(ts.owner()), http.MethodGet, "/billing/plans?include_inactive=true", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubscriptionOwnership(t *testing.T) {
	ts := newTestServer(t)
	path := "/billing/subscription/" + ts.sub.ID.String()

	w := ts.do(t, ptr(ts.owner()), http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sub subscriptiondomain.Subscription
	decode(t, w, &sub)
	assert.Equal(t, ts.sub.ID, sub.ID)

	w = ts.do(t, ptr(ts.stranger()), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	env := decode(t, w, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "forbidden", env.Error.Type)

	w = ts.do(t, ptr(admin()), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodGet, "/billing/subscription/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCustomerRoutes(t *testing.T) {
	ts := newTestServer(t)
	path := "/billing/customers/" + ts.customer.ID.String()

	w := ts.do(t, ptr(ts.owner()), http.MethodGet, "/billing/customers", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodGet, "/billing/customers?page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var customers []customerdomain.Customer
	decode(t, w, &customers)
	require.Len(t, customers, 1)

	w = ts.do(t, ptr(ts.stranger()), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, ptr(ts.owner()), http.MethodPatch, path, gin.H{"address": "New Street 9"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPatch, path, gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPatch, path, gin.H{"address": "New Street 9", "tax_id": "GB123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated customerdomain.Customer
	decode(t, w, &updated)
	assert.Equal(t, "New Street 9", updated.Address)
	assert.Equal(t, "Asha", updated.Name)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/generate-invoice", gin.H{
		"subscription_id": ts.sub.ID.String(),
		"period_start":    "2024-04-01",
		"period_end":      "2024-05-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var invoice invoicedomain.InvoiceDetail
	decode(t, w, &invoice)
	assert.Equal(t, "New Street 9", invoice.CustomerAddress)
	assert.Equal(t, "GB123", invoice.CustomerTaxID)
}

func TestChangePlanRoute(t *testing.T) {
	ts := newTestServer(t)
	path := "/billing/subscription/" + ts.sub.ID.String() + "/change-plan"

	w := ts.do(t, ptr(ts.owner()), http.MethodPost, path, gin.H{
		"new_plan_id":      ts.pro.ID.String(),
		"reason":           "more seats",
		"expected_version": ts.sub.Version,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		ProrationType string `json:"proration_type"`
		Proration     struct {
			CreditCents int64 `json:"credit_cents"`
			ChargeCents int64 `json:"charge_cents"`
			NetCents    int64 `json:"net_cents"`
		} `json:"proration"`
	}
	decode(t, w, &res)
	assert.Equal(t, "PRORATED", res.ProrationType)
	assert.Equal(t, int64(333), res.Proration.NetCents)

	// the version moved on, so replaying the stale expectation conflicts
	w = ts.do(t, ptr(ts.owner()), http.MethodPost, path, gin.H{
		"new_plan_id":      ts.basic.ID.String(),
		"expected_version": ts.sub.Version,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, ptr(ts.owner()), http.MethodPost, path, gin.H{"new_plan_id": ts.pro.ID.String()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "plan_unchanged", env.Error.Errors[0].Code)

	w = ts.do(t, ptr(ts.stranger()), http.MethodPost, path, gin.H{"new_plan_id": ts.basic.ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChangePlanIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	path := "/billing/subscription/" + ts.sub.ID.String() + "/change-plan"
	body := gin.H{"new_plan_id": ts.pro.ID.String()}

	first := ts.do(t, ptr(ts.owner()), http.MethodPost, path, body, idempotency.HeaderKey, "chg-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := ts.do(t, ptr(ts.owner()), http.MethodPost, path, body, idempotency.HeaderKey, "chg-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := ts.do(t, ptr(ts.owner()), http.MethodGet, "/billing/subscription/"+ts.sub.ID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []subscriptiondomain.PlanHistory
	decode(t, w, &history)
	assert.Len(t, history, 2)

	w = ts.do(t, ptr(ts.owner()), http.MethodPost, path, gin.H{"new_plan_id": ts.basic.ID.String()}, idempotency.HeaderKey, "chg-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCancelRoute(t *testing.T) {
	ts := newTestServer(t)
	path := "/billing/subscription/" + ts.sub.ID.String() + "/cancel"

	w := ts.do(t, ptr(ts.owner()), http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Immediate    bool `json:"immediate"`
		Subscription struct {
			Status string `json:"status"`
		} `json:"subscription"`
	}
	decode(t, w, &res)
	assert.True(t, res.Immediate)
	assert.Equal(t, "CANCELLED", res.Subscription.Status)

	w = ts.do(t, ptr(ts.owner()), http.MethodPost, path, gin.H{"reason": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInvoiceRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, ptr(ts.owner()), http.MethodPost, "/scheduler/generate-invoice", gin.H{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := gin.H{
		"subscription_id": ts.sub.ID.String(),
		"period_start":    "2024-04-01",
		"period_end":      "2024-05-01",
	}
	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/generate-invoice", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created invoicedomain.InvoiceDetail
	decode(t, w, &created)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, created.Status)
	assert.Equal(t, int64(999), created.TotalCents)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/generate-invoice", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, ptr(ts.owner()), http.MethodGet, "/billing/subscription/"+ts.sub.ID.String()+"/invoices?status=draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []invoicedomain.Invoice
	decode(t, w, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	w = ts.do(t, ptr(ts.owner()), http.MethodGet, "/billing/subscription/"+ts.sub.ID.String()+"/invoices?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	invoicePath := "/billing/invoice/" + created.ID.String()
	w = ts.do(t, ptr(ts.stranger()), http.MethodGet, invoicePath, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, ptr(ts.owner()), http.MethodPost, invoicePath+"/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var finalized invoicedomain.InvoiceDetail
	decode(t, w, &finalized)
	assert.Equal(t, invoicedomain.InvoiceStatusFinal, finalized.Status)

	w = ts.do(t, ptr(ts.owner()), http.MethodPost, invoicePath+"/finalize", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, ptr(ts.owner()), http.MethodPost, invoicePath+"/mark-paid", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPost, invoicePath+"/mark-paid", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid invoicedomain.Invoice
	decode(t, w, &paid)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, paid.Status)
}

func TestAdjustmentRoutes(t *testing.T) {
	ts := newTestServer(t)
	subPath := "/billing/subscription/" + ts.sub.ID.String()

	w := ts.do(t, ptr(ts.owner()), http.MethodPost, "/billing/adjustment", gin.H{
		"subscription_id": ts.sub.ID.String(), "amount_cents": 500, "type": "CREDIT", "reason_code": "GOODWILL",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/billing/adjustment", gin.H{
		"subscription_id": ts.sub.ID.String(), "amount_cents": 500, "type": "credit", "reason_code": "goodwill",
		"description": "sorry",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var credit adjustmentdomain.Adjustment
	decode(t, w, &credit)
	assert.Equal(t, int64(-500), credit.AmountCents)
	assert.Equal(t, adjustmentdomain.StatusPending, credit.Status)
	assert.Equal(t, "admin", credit.CreatedBy)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/billing/adjustment", gin.H{
		"subscription_id": ts.sub.ID.String(), "amount_cents": -500, "type": "CHARGE", "reason_code": "BILLING_ERROR",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var charge adjustmentdomain.Adjustment
	decode(t, w, &charge)
	assert.Equal(t, int64(500), charge.AmountCents)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/billing/adjustment", gin.H{
		"subscription_id": ts.sub.ID.String(), "amount_cents": 12.5, "type": "CHARGE", "reason_code": "OTHER",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/billing/adjustment", gin.H{
		"subscription_id": ts.sub.ID.String(), "kind": "service_credit", "policy": "DAYS", "units": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, ptr(admin()), http.MethodPost, "/billing/adjustment", gin.H{
		"subscription_id": ts.sub.ID.String(), "kind": "refund",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/billing/adjustment/"+charge.ID.String()+"/void", gin.H{"reason": "mistake"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = ts.do(t, ptr(admin()), http.MethodPost, "/billing/adjustment/"+charge.ID.String()+"/void", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, ptr(ts.owner()), http.MethodGet, subPath+"/adjustments?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []adjustmentdomain.Adjustment
	decode(t, w, &pending)
	assert.Len(t, pending, 2)

	w = ts.do(t, ptr(ts.owner()), http.MethodGet, subPath+"/adjustments/summary?from=2024-04-01&to=2024-04-30", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary adjustmentdomain.Summary
	decode(t, w, &summary)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 1, summary.ByStatus[adjustmentdomain.StatusVoided].Count)
	assert.Equal(t, int64(0), summary.TotalChargesCents)

	w = ts.do(t, ptr(ts.stranger()), http.MethodGet, subPath+"/adjustments", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSchedulerRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, ptr(ts.owner()), http.MethodGet, "/scheduler/status", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodGet, "/scheduler/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status scheduler.Status
	decode(t, w, &status)
	assert.False(t, status.Running)
	assert.Len(t, status.Jobs, len(scheduler.BillingJobs))

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/run-job/rm-rf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/run-job/"+scheduler.JobDailyInvoiceGeneration, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run struct {
		Job    string              `json:"job"`
		Status string              `json:"status"`
		Result scheduler.JobResult `json:"result"`
	}
	decode(t, w, &run)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 1, run.Result.Success)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	t.Cleanup(func() {
		if ts.sched.IsRunning() {
			_ = ts.sched.Stop(context.Background())
		}
	})
	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/stop", gin.H{"job": scheduler.JobWeeklyCleanup})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &status)
	for _, job := range status.Jobs {
		if job.Name == scheduler.JobWeeklyCleanup {
			assert.False(t, job.Enabled)
			assert.Nil(t, job.NextRunAt)
		} else {
			assert.NotNil(t, job.NextRunAt)
		}
	}

	w = ts.do(t, ptr(admin()), http.MethodPost, "/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ts.sched.IsRunning())
}
