package service

import (
	"context"
	"fmt"

	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	"go.uber.org/zap"
)

// runBatch applies fn to every item in order. A failing or panicking item is
// recorded and the batch moves on; a cancelled context fails the remainder.
func runBatch[T any](
	ctx context.Context,
	log *zap.Logger,
	items []T,
	key func(T) string,
	fn func(context.Context, T) (billingdomain.ItemStatus, error),
) billingdomain.BatchResult {
	result := billingdomain.BatchResult{
		Errors: []string{},
		Items:  make([]billingdomain.BatchItem, 0, len(items)),
	}
	for _, item := range items {
		id := key(item)
		if err := ctx.Err(); err != nil {
			result.Record(id, billingdomain.ItemFailed, err)
			continue
		}
		status, err := runItem(ctx, item, fn)
		if err != nil {
			status = billingdomain.ItemFailed
			log.Warn("batch item failed", zap.String("id", id), zap.Error(err))
		}
		result.Record(id, status, err)
	}
	return result
}

func runItem[T any](
	ctx context.Context,
	item T,
	fn func(context.Context, T) (billingdomain.ItemStatus, error),
) (status billingdomain.ItemStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = billingdomain.ItemFailed
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
