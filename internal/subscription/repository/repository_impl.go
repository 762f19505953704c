package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).Take(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalizeSubscription(&subscription)
	return &subscription, nil
}

func (r *repo) UpdateVersioned(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription, fields map[string]any) error {
	fields["version"] = sub.Version + 1
	res := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrVersionConflict
	}
	sub.Version++
	return nil
}

func (r *repo) ListBillable(ctx context.Context, db *gorm.DB, anchorOnOrBefore time.Time) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status IN ?", []subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusPendingCancellation,
		}).
		Where("billing_cycle_anchor <= ?", anchorOnOrBefore).
		Order("billing_cycle_anchor asc, id asc").
		Find(&subs).Error
	for i := range subs {
		normalizeSubscription(&subs[i])
	}
	return subs, err
}

func (r *repo) ListDueCancellations(ctx context.Context, db *gorm.DB, asOf time.Time) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("status = ?", subscriptiondomain.SubscriptionStatusPendingCancellation).
		Where("scheduled_cancellation_date <= ?", asOf).
		Order("scheduled_cancellation_date asc, id asc").
		Find(&subs).Error
	for i := range subs {
		normalizeSubscription(&subs[i])
	}
	return subs, err
}

func (r *repo) InsertSegment(ctx context.Context, db *gorm.DB, segment *subscriptiondomain.PlanHistory) error {
	return db.WithContext(ctx).Create(segment).Error
}

func (r *repo) UpdateSegment(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&subscriptiondomain.PlanHistory{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) DeleteSegment(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&subscriptiondomain.PlanHistory{}).Error
}

func (r *repo) FindOpenSegment(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*subscriptiondomain.PlanHistory, error) {
	return r.findSegment(ctx, db.
		Where("subscription_id = ? AND effective_to IS NULL", subscriptionID).
		Order("effective_from desc, id desc"))
}

func (r *repo) FindPendingChange(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*subscriptiondomain.PlanHistory, error) {
	return r.findSegment(ctx, db.
		Where("subscription_id = ? AND processed = ? AND change_type = ?",
			subscriptionID, false, subscriptiondomain.ChangeTypePlanChange).
		Order("effective_from asc, id asc"))
}

func (r *repo) FindPendingCancellation(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*subscriptiondomain.PlanHistory, error) {
	return r.findSegment(ctx, db.
		Where("subscription_id = ? AND processed = ? AND change_type = ?",
			subscriptionID, false, subscriptiondomain.ChangeTypeCancellation).
		Order("effective_from asc, id asc"))
}

func (r *repo) FindSegmentEndingAt(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, t time.Time) (*subscriptiondomain.PlanHistory, error) {
	return r.findSegment(ctx, db.
		Where("subscription_id = ? AND effective_to = ? AND change_type <> ?",
			subscriptionID, t, subscriptiondomain.ChangeTypeCancellation).
		Order("effective_from desc, id desc"))
}

func (r *repo) ListSegments(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]subscriptiondomain.PlanHistory, error) {
	var segments []subscriptiondomain.PlanHistory
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("effective_from asc, id asc").
		Find(&segments).Error
	for i := range segments {
		normalizeSegment(&segments[i])
	}
	return segments, err
}

func (r *repo) ListDuePlanChanges(ctx context.Context, db *gorm.DB, asOf time.Time) ([]subscriptiondomain.PlanHistory, error) {
	var segments []subscriptiondomain.PlanHistory
	err := db.WithContext(ctx).
		Where("processed = ? AND change_type = ? AND effective_from <= ?",
			false, subscriptiondomain.ChangeTypePlanChange, asOf).
		Order("effective_from asc, id asc").
		Find(&segments).Error
	for i := range segments {
		normalizeSegment(&segments[i])
	}
	return segments, err
}

func (r *repo) findSegment(ctx context.Context, stmt *gorm.DB) (*subscriptiondomain.PlanHistory, error) {
	var segment subscriptiondomain.PlanHistory
	err := stmt.WithContext(ctx).Take(&segment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalizeSegment(&segment)
	return &segment, nil
}

// Drivers hand times back in the session location; billing math expects UTC.
func normalizeSubscription(s *subscriptiondomain.Subscription) {
	s.BillingCycleAnchor = s.BillingCycleAnchor.UTC()
	s.ScheduledCancellationDate = utcPtr(s.ScheduledCancellationDate)
	s.LastPlanChangeDate = utcPtr(s.LastPlanChangeDate)
}

func normalizeSegment(p *subscriptiondomain.PlanHistory) {
	p.EffectiveFrom = p.EffectiveFrom.UTC()
	p.EffectiveTo = utcPtr(p.EffectiveTo)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
