package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/customer/domain"
	"github.com/smallbiznis/billingcore/internal/customer/repository"
	"github.com/smallbiznis/billingcore/pkg/db/dbtest"
	"github.com/smallbiznis/billingcore/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	conn := dbtest.Open(t, &domain.Customer{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestCreateAndGetCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateCustomerRequest{Name: " Asha ", Email: "Asha@Example.com", CompanyName: "Acme"})
	require.NoError(t, err)
	require.Equal(t, "Asha", created.Name)
	require.Equal(t, "asha@example.com", created.Email)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme", got.CompanyName)

	_, err = svc.GetByID(ctx, 42)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(ctx, 0)
	require.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestCreateCustomerValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateCustomerRequest
		err  error
	}{
		{"blank name", domain.CreateCustomerRequest{Name: "  ", Email: "a@example.com"}, domain.ErrInvalidName},
		{"missing at", domain.CreateCustomerRequest{Name: "x", Email: "nope"}, domain.ErrInvalidEmail},
		{"display name", domain.CreateCustomerRequest{Name: "x", Email: "X <x@example.com>"}, domain.ErrInvalidEmail},
		{"empty email", domain.CreateCustomerRequest{Name: "x"}, domain.ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestListCustomers(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"Asha", "Ravi", "Meera"} {
		_, err := svc.Create(ctx, domain.CreateCustomerRequest{Name: name, Email: name + "@example.com"})
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}

	resp, err := svc.List(ctx, domain.ListCustomerRequest{Pagination: pagination.Pagination{Page: 1, PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, resp.Customers, 2)
	require.Equal(t, "Meera", resp.Customers[0].Name)
	require.EqualValues(t, 3, resp.PageInfo.TotalItems)
	require.True(t, resp.PageInfo.HasMore)

	resp, err = svc.List(ctx, domain.ListCustomerRequest{Email: "RAVI@example.com"})
	require.NoError(t, err)
	require.Len(t, resp.Customers, 1)
	require.Equal(t, "Ravi", resp.Customers[0].Name)

	_, err = svc.List(ctx, domain.ListCustomerRequest{Email: "bad"})
	require.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestUpdateBillingDetails(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateCustomerRequest{Name: "Asha", Email: "asha@example.com", Address: "Old Street 1"})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	address := "New Street 9"
	taxID := "GB123"
	updated, err := svc.UpdateBillingDetails(ctx, domain.UpdateBillingDetailsRequest{
		ID:      created.ID,
		Address: &address,
		TaxID:   &taxID,
	})
	require.NoError(t, err)
	require.Equal(t, "Asha", updated.Name)
	require.Equal(t, "New Street 9", updated.Address)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "GB123", got.TaxID)

	blank := " "
	_, err = svc.UpdateBillingDetails(ctx, domain.UpdateBillingDetailsRequest{ID: created.ID, Name: &blank})
	require.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.UpdateBillingDetails(ctx, domain.UpdateBillingDetailsRequest{ID: 99, Name: &address})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
