package repository

import (
	"context"
	"testing"
	"time"

	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"github.com/smallbiznis/billingcore/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
)

func TestUpdateVersionedRejectsStaleWrites(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t, &subscriptiondomain.Subscription{})
	r := Provide()

	anchor := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	sub, err := subscriptiondomain.NewSubscription(1, 2, 3, 999, anchor)
	require.NoError(t, err)
	sub.CreatedAt, sub.UpdatedAt = anchor, anchor
	require.NoError(t, r.Insert(ctx, conn, sub))

	first, err := r.FindByID(ctx, conn, 1)
	require.NoError(t, err)
	second, err := r.FindByID(ctx, conn, 1)
	require.NoError(t, err)

	require.NoError(t, r.UpdateVersioned(ctx, conn, first, map[string]any{"plan_id": 4}))
	require.Equal(t, int64(2), first.Version)

	err = r.UpdateVersioned(ctx, conn, second, map[string]any{"plan_id": 5})
	require.ErrorIs(t, err, subscriptiondomain.ErrVersionConflict)

	stored, err := r.FindByID(ctx, conn, 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, stored.PlanID)
	require.Equal(t, int64(2), stored.Version)
	require.True(t, stored.BillingCycleAnchor.Equal(anchor))
}

func TestSegmentQueries(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t, &subscriptiondomain.PlanHistory{})
	r := Provide()

	d := func(day int) time.Time { return time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC) }
	closedAt := d(20)
	require.NoError(t, r.InsertSegment(ctx, conn, &subscriptiondomain.PlanHistory{
		ID: 1, SubscriptionID: 9, ChangeType: subscriptiondomain.ChangeTypeInitial,
		EffectiveFrom: d(1), EffectiveTo: &closedAt, ProrationType: subscriptiondomain.ProrationTypeImmediate, Processed: true,
	}))
	require.NoError(t, r.InsertSegment(ctx, conn, &subscriptiondomain.PlanHistory{
		ID: 2, SubscriptionID: 9, ChangeType: subscriptiondomain.ChangeTypePlanChange,
		EffectiveFrom: d(20), ProrationType: subscriptiondomain.ProrationTypeNextCycle, Processed: false,
	}))

	open, err := r.FindOpenSegment(ctx, conn, 9)
	require.NoError(t, err)
	require.EqualValues(t, 2, open.ID)

	pending, err := r.FindPendingChange(ctx, conn, 9)
	require.NoError(t, err)
	require.EqualValues(t, 2, pending.ID)

	prev, err := r.FindSegmentEndingAt(ctx, conn, 9, d(20))
	require.NoError(t, err)
	require.EqualValues(t, 1, prev.ID)

	due, err := r.ListDuePlanChanges(ctx, conn, d(19))
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = r.ListDuePlanChanges(ctx, conn, d(20))
	require.NoError(t, err)
	require.Len(t, due, 1)
}
