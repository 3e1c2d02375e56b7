package services

import (
	"context"
	"time"
)

// Analytics event names forwarded to the analytics pipeline.
const (
	EventViewItem               = "view_item"
	EventSelectVariant          = "select_variant"
	EventAddToCart              = "add_to_cart"
	EventUpdateCartItemQuantity = "update_cart_item_quantity"
	EventBeginCheckout          = "begin_checkout"
)

// AnalyticsEvent is one storefront interaction.
type AnalyticsEvent struct {
	ID         string
	Name       string
	UserID     string
	OccurredAt time.Time
	Params     map[string]any
}

// analyticsEmitter publishes events without letting failures reach the caller.
type analyticsEmitter struct {
	publisher AnalyticsPublisher
	newID     func() string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

func (e analyticsEmitter) emit(ctx context.Context, name, userID string, params map[string]any) {
	if e.publisher == nil {
		return
	}
	event := AnalyticsEvent{
		ID:         e.newID(),
		Name:       name,
		UserID:     userID,
		OccurredAt: e.now(),
		Params:     params,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger(ctx, "analytics.publish_failed", map[string]any{
			"event": name,
			"error": err.Error(),
		})
	}
}
