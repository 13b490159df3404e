package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// ListingFeed turns mutation events on the bus into full listing snapshots.
// Watchers always receive the complete current result set, never a diff.
type ListingFeed struct {
	bus         domain.SignalBus
	industries  domain.IndustryStore
	predictions domain.PredictionStore
	version     atomic.Int64
	logger      *slog.Logger
}

// NewListingFeed creates a ListingFeed.
func NewListingFeed(bus domain.SignalBus, industries domain.IndustryStore, predictions domain.PredictionStore, logger *slog.Logger) *ListingFeed {
	return &ListingFeed{
		bus:         bus,
		industries:  industries,
		predictions: predictions,
		logger:      logger.With(slog.String("component", "listing_feed")),
	}
}

// Snapshot loads both listings from the store.
func (f *ListingFeed) Snapshot(ctx context.Context) (domain.Listing, error) {
	industries, err := f.industries.List(ctx)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_feed: industries: %w", err)
	}
	preds, err := f.predictions.List(ctx, domain.PredictionFilter{})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_feed: predictions: %w", err)
	}
	return domain.Listing{
		Version:     f.version.Add(1),
		Industries:  industries,
		Predictions: preds,
	}, nil
}

// Watch delivers the current snapshot immediately and a fresh one after
// every mutation event. A slow watcher only ever sees the latest snapshot.
// The channel is closed when ctx ends.
func (f *ListingFeed) Watch(ctx context.Context) (<-chan domain.Listing, error) {
	events, err := f.bus.Subscribe(ctx, domain.ChannelListing)
	if err != nil {
		return nil, fmt.Errorf("listing_feed: subscribe: %w", err)
	}
	first, err := f.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Listing, 1)
	out <- first

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				snap, err := f.Snapshot(ctx)
				if err != nil {
					if ctx.Err() == nil {
						f.logger.WarnContext(ctx, "reload listing failed", slog.String("error", err.Error()))
					}
					continue
				}
				// Replace an unread snapshot with the newer one.
				select {
				case <-out:
				default:
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
