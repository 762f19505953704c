package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	customerdomain "github.com/smallbiznis/billingcore/internal/customer/domain"
	customerrepo "github.com/smallbiznis/billingcore/internal/customer/repository"
	customerservice "github.com/smallbiznis/billingcore/internal/customer/service"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/billingcore/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/billingcore/internal/ledger/domain"
	"github.com/smallbiznis/billingcore/internal/ledger/domain/mocks"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	planservice "github.com/smallbiznis/billingcore/internal/plan/service"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/billingcore/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/billingcore/internal/subscription/service"
	"github.com/smallbiznis/billingcore/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      adjustmentdomain.Service
	invoices invoicedomain.Service
	ledger   *mocks.MockPoster
	clk      *clock.FakeClock
	sub      *subscriptiondomain.Subscription
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	conn := dbtest.Open(t,
		&plandomain.Plan{}, &plandomain.PriceHistory{},
		&customerdomain.Customer{},
		&subscriptiondomain.Subscription{}, &subscriptiondomain.PlanHistory{},
		&invoicedomain.Invoice{}, &invoicedomain.InvoiceLineItem{},
		&adjustmentdomain.Adjustment{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	plans := planservice.NewService(planservice.ServiceParam{DB: conn, Log: log, GenID: node, Clock: clk, BillingCfg: cfg})
	customers := customerservice.New(customerservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: customerrepo.Provide()})
	subscriptions := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: subscriptionrepo.Provide(), PlanSvc: plans, CustomerSvc: customers,
	})
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{DB: conn, Log: log, GenID: node, Clock: clk, BillingCfg: cfg})
	ledger := mocks.NewMockPoster(gomock.NewController(t))

	svc := NewService(ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk, BillingCfg: cfg,
		SubscriptionSvc: subscriptions, InvoiceSvc: invoices, Ledger: ledger,
	})

	plan, err := plans.Create(ctx, plandomain.CreatePlanRequest{Name: "Team", MonthlyPriceCents: 3000})
	require.NoError(t, err)
	cust, err := customers.Create(ctx, customerdomain.CreateCustomerRequest{Name: "Asha", Email: "asha@example.com"})
	require.NoError(t, err)
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	sub, err := subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{CustomerID: cust.ID, PlanID: plan.ID, StartDate: &start})
	require.NoError(t, err)

	return fixture{db: conn, svc: svc, invoices: invoices, ledger: ledger, clk: clk, sub: sub}
}

func TestCreateCoercesSign(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	credit, err := f.svc.Create(ctx, adjustmentdomain.CreateRequest{
		SubscriptionID: f.sub.ID, AmountCents: 500, Type: adjustmentdomain.AdjustmentTypeCredit, ReasonCode: adjustmentdomain.ReasonGoodwill,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-500), credit.AmountCents)
	assert.Equal(t, adjustmentdomain.StatusPending, credit.Status)
	assert.True(t, credit.EffectiveDate.Equal(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)))

	charge, err := f.svc.Create(ctx, adjustmentdomain.CreateRequest{
		SubscriptionID: f.sub.ID, AmountCents: -500, Type: adjustmentdomain.AdjustmentTypeCharge, ReasonCode: adjustmentdomain.ReasonOther,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), charge.AmountCents)

	correction, err := f.svc.Create(ctx, adjustmentdomain.CreateRequest{
		SubscriptionID: f.sub.ID, AmountCents: -42, Type: adjustmentdomain.AdjustmentTypeCorrection, ReasonCode: adjustmentdomain.ReasonBillingError,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-42), correction.AmountCents)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, adjustmentdomain.CreateRequest{SubscriptionID: f.sub.ID, AmountCents: 0, Type: adjustmentdomain.AdjustmentTypeCredit, ReasonCode: adjustmentdomain.ReasonGoodwill})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvalidAmount)

	_, err = f.svc.Create(ctx, adjustmentdomain.CreateRequest{SubscriptionID: f.sub.ID, AmountCents: 1, Type: "REFUND", ReasonCode: adjustmentdomain.ReasonGoodwill})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvalidType)

	_, err = f.svc.Create(ctx, adjustmentdomain.CreateRequest{SubscriptionID: f.sub.ID, AmountCents: 1, Type: adjustmentdomain.AdjustmentTypeCharge, ReasonCode: "BIRTHDAY"})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvalidReason)

	_, err = f.svc.Create(ctx, adjustmentdomain.CreateRequest{SubscriptionID: snowflake.ID(999), AmountCents: 1, Type: adjustmentdomain.AdjustmentTypeCharge, ReasonCode: adjustmentdomain.ReasonOther})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	notMidnight := f.clk.Now()
	_, err = f.svc.Create(ctx, adjustmentdomain.CreateRequest{SubscriptionID: f.sub.ID, AmountCents: 1, Type: adjustmentdomain.AdjustmentTypeCharge, ReasonCode: adjustmentdomain.ReasonOther, EffectiveDate: &notMidnight})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvalidEffectiveDate)
}

func TestAutoApplyPostsToLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entryID := snowflake.ID(77)
	f.ledger.EXPECT().
		Post(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e ledgerdomain.BillingEvent) (ledgerdomain.EntryRef, error) {
			assert.Equal(t, ledgerdomain.EventAdjustmentApplied, e.Type)
			assert.Equal(t, int64(-250), e.AmountCents)
			assert.Equal(t, f.sub.CustomerID, e.CustomerID)
			return ledgerdomain.EntryRef{ID: entryID, Reference: e.Reference()}, nil
		})

	adj, err := f.svc.CreateGoodwillCredit(ctx, adjustmentdomain.GoodwillCreditRequest{SubscriptionID: f.sub.ID, AmountCents: 250, AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, adjustmentdomain.StatusApplied, adj.Status)
	assert.Equal(t, "Goodwill credit", adj.Description)

	stored, err := f.svc.GetByID(ctx, adj.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustmentdomain.StatusApplied, stored.Status)
	require.NotNil(t, stored.JournalEntryID)
	assert.Equal(t, entryID, *stored.JournalEntryID)
}

func TestAutoApplyLedgerFailureLeavesPending(t *testing.T) {
	f := setup(t)
	f.ledger.EXPECT().Post(gomock.Any(), gomock.Any()).Return(ledgerdomain.EntryRef{}, errors.New("ledger down"))

	adj, err := f.svc.CreateGoodwillCredit(context.Background(), adjustmentdomain.GoodwillCreditRequest{SubscriptionID: f.sub.ID, AmountCents: 250, AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, adjustmentdomain.StatusPending, adj.Status)
}

func TestCreateServiceCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  adjustmentdomain.ServiceCreditRequest
		want int64
	}{
		{"days", adjustmentdomain.ServiceCreditRequest{Policy: adjustmentdomain.ServiceCreditDays, Units: 3}, -300},
		{"hours", adjustmentdomain.ServiceCreditRequest{Policy: adjustmentdomain.ServiceCreditHours, Units: 6}, -25},
		{"percentage", adjustmentdomain.ServiceCreditRequest{Policy: adjustmentdomain.ServiceCreditPercentage, Percentage: "12.5"}, -375},
		{"capped", adjustmentdomain.ServiceCreditRequest{Policy: adjustmentdomain.ServiceCreditDays, Units: 45}, -3000},
		{"uncapped", adjustmentdomain.ServiceCreditRequest{Policy: adjustmentdomain.ServiceCreditDays, Units: 45, NoCap: true}, -4500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.SubscriptionID = f.sub.ID
			adj, err := f.svc.CreateServiceCredit(ctx, tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, adj.AmountCents)
			assert.Equal(t, adjustmentdomain.ReasonServiceOutage, adj.ReasonCode)
		})
	}

	_, err := f.svc.CreateServiceCredit(ctx, adjustmentdomain.ServiceCreditRequest{SubscriptionID: f.sub.ID, Policy: "WEEKS", Units: 1})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvalidPolicy)
	_, err = f.svc.CreateServiceCredit(ctx, adjustmentdomain.ServiceCreditRequest{SubscriptionID: f.sub.ID, Policy: adjustmentdomain.ServiceCreditPercentage, Percentage: "150"})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvalidPercentage)
}

func TestCreatePromotionalDiscount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	adj, err := f.svc.CreatePromotionalDiscount(ctx, adjustmentdomain.PromotionalDiscountRequest{SubscriptionID: f.sub.ID, Percentage: "20", PromoCode: "SPRING"})
	require.NoError(t, err)
	assert.Equal(t, int64(-600), adj.AmountCents)
	assert.Equal(t, "SPRING", adj.Metadata["promo_code"])

	adj, err = f.svc.CreatePromotionalDiscount(ctx, adjustmentdomain.PromotionalDiscountRequest{SubscriptionID: f.sub.ID, AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(-100), adj.AmountCents)

	_, err = f.svc.CreatePromotionalDiscount(ctx, adjustmentdomain.PromotionalDiscountRequest{SubscriptionID: f.sub.ID, AmountCents: 100, Percentage: "5"})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvalidAmount)
}

func (f fixture) finalInvoice(t *testing.T, due time.Time) *invoicedomain.InvoiceDetail {
	t.Helper()
	ctx := context.Background()
	l, err := invoicedomain.NewInvoiceLineItem(invoicedomain.LineItemSubscription, "Team", 1, 3000, true)
	require.NoError(t, err)

	var inv *invoicedomain.InvoiceDetail
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = f.invoices.CreateTx(ctx, tx, invoicedomain.Draft{
			SubscriptionID: f.sub.ID,
			PeriodStart:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			DueDate:        due,
			TaxPercentage:  decimal.Zero,
			Lines:          []invoicedomain.InvoiceLineItem{l},
		})
		if err != nil {
			return err
		}
		_, err = f.invoices.FinalizeTx(ctx, tx, inv.ID, f.clk.Now())
		return err
	}))
	return inv
}

func TestCreateLateFee(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	inv := f.finalInvoice(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC))

	// 1.5% of 3000 is 45, below the 100 minimum.
	fee, err := f.svc.CreateLateFee(ctx, adjustmentdomain.LateFeeRequest{SubscriptionID: f.sub.ID, InvoiceID: inv.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(100), fee.AmountCents)
	assert.Equal(t, adjustmentdomain.AdjustmentTypeCharge, fee.Type)
	assert.Equal(t, inv.InvoiceNumber, fee.Metadata["invoice_number"])

	pct := "10"
	fee, err = f.svc.CreateLateFee(ctx, adjustmentdomain.LateFeeRequest{SubscriptionID: f.sub.ID, InvoiceID: inv.ID, Percentage: &pct})
	require.NoError(t, err)
	assert.Equal(t, int64(300), fee.AmountCents)

	fixed := int64(250)
	fee, err = f.svc.CreateLateFee(ctx, adjustmentdomain.LateFeeRequest{SubscriptionID: f.sub.ID, InvoiceID: inv.ID, FixedCents: &fixed})
	require.NoError(t, err)
	assert.Equal(t, int64(250), fee.AmountCents)
}

func TestCreateLateFeeRequiresOverdueInvoice(t *testing.T) {
	f := setup(t)
	inv := f.finalInvoice(t, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC))

	_, err := f.svc.CreateLateFee(context.Background(), adjustmentdomain.LateFeeRequest{SubscriptionID: f.sub.ID, InvoiceID: inv.ID})
	assert.ErrorIs(t, err, adjustmentdomain.ErrInvoiceNotOverdue)
}

func TestVoidOnlyWhilePending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	adj, err := f.svc.CreateGoodwillCredit(ctx, adjustmentdomain.GoodwillCreditRequest{SubscriptionID: f.sub.ID, AmountCents: 100})
	require.NoError(t, err)

	voided, err := f.svc.Void(ctx, adjustmentdomain.VoidRequest{ID: adj.ID, Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, adjustmentdomain.StatusVoided, voided.Status)
	assert.Equal(t, "duplicate", voided.VoidReason)

	_, err = f.svc.Void(ctx, adjustmentdomain.VoidRequest{ID: adj.ID})
	assert.ErrorIs(t, err, adjustmentdomain.ErrNotPending)

	_, err = f.svc.Void(ctx, adjustmentdomain.VoidRequest{ID: snowflake.ID(1)})
	assert.ErrorIs(t, err, adjustmentdomain.ErrNotFound)
}

func TestSummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mk := func(amount int64, typ adjustmentdomain.AdjustmentType, reason adjustmentdomain.ReasonCode) *adjustmentdomain.Adjustment {
		adj, err := f.svc.Create(ctx, adjustmentdomain.CreateRequest{SubscriptionID: f.sub.ID, AmountCents: amount, Type: typ, ReasonCode: reason})
		require.NoError(t, err)
		return adj
	}
	mk(500, adjustmentdomain.AdjustmentTypeCredit, adjustmentdomain.ReasonGoodwill)
	mk(200, adjustmentdomain.AdjustmentTypeCredit, adjustmentdomain.ReasonGoodwill)
	mk(300, adjustmentdomain.AdjustmentTypeCharge, adjustmentdomain.ReasonLateFee)
	voided := mk(1000, adjustmentdomain.AdjustmentTypeCredit, adjustmentdomain.ReasonPromotional)
	_, err := f.svc.Void(ctx, adjustmentdomain.VoidRequest{ID: voided.ID})
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, adjustmentdomain.SummaryRequest{SubscriptionID: f.sub.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Count)
	assert.Equal(t, int64(700), summary.TotalCreditsCents)
	assert.Equal(t, int64(300), summary.TotalChargesCents)
	assert.Equal(t, int64(-400), summary.NetCents)
	assert.Equal(t, 3, summary.ByStatus[adjustmentdomain.StatusPending].Count)
	assert.Equal(t, 1, summary.ByStatus[adjustmentdomain.StatusVoided].Count)
	assert.Equal(t, int64(-700), summary.ByReason[adjustmentdomain.ReasonGoodwill].AmountCents)
	_, hasPromo := summary.ByReason[adjustmentdomain.ReasonPromotional]
	assert.False(t, hasPromo)

	future := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	summary, err = f.svc.Summary(ctx, adjustmentdomain.SummaryRequest{SubscriptionID: f.sub.ID, From: &future})
	require.NoError(t, err)
	assert.Zero(t, summary.Count)
}

func TestTransactionalHelpers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	early, err := f.svc.CreateGoodwillCredit(ctx, adjustmentdomain.GoodwillCreditRequest{SubscriptionID: f.sub.ID, AmountCents: 100})
	require.NoError(t, err)
	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, adjustmentdomain.CreateRequest{
		SubscriptionID: f.sub.ID, AmountCents: 50, Type: adjustmentdomain.AdjustmentTypeCharge,
		ReasonCode: adjustmentdomain.ReasonOther, EffectiveDate: &later,
	})
	require.NoError(t, err)

	pending, err := f.svc.ListPendingTx(ctx, f.db, f.sub.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, early.ID, pending[0].ID)

	invoiceID := snowflake.ID(4242)
	require.NoError(t, f.svc.MarkAppliedTx(ctx, f.db, []snowflake.ID{early.ID}, invoiceID, f.clk.Now()))
	assert.ErrorIs(t, f.svc.MarkAppliedTx(ctx, f.db, []snowflake.ID{early.ID}, invoiceID, f.clk.Now()), adjustmentdomain.ErrNotPending)

	applied, err := f.svc.CountAppliedTx(ctx, f.db, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), applied)
	stored, err := f.svc.GetByID(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustmentdomain.StatusApplied, stored.Status)
	require.NotNil(t, stored.InvoiceID)
	assert.Equal(t, invoiceID, *stored.InvoiceID)
	_, err = f.svc.Void(ctx, adjustmentdomain.VoidRequest{ID: early.ID})
	assert.ErrorIs(t, err, adjustmentdomain.ErrNotPending)

	pending, err = f.svc.ListPendingTx(ctx, f.db, f.sub.ID, later)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = f.svc.Void(ctx, adjustmentdomain.VoidRequest{ID: pending[0].ID})
	require.NoError(t, err)
	purged, err := f.svc.PurgeVoided(ctx, f.clk.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
