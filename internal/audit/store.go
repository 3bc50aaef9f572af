package audit

import "context"

// Store persists audit events. Events for an asset are returned in append order.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAsset(ctx context.Context, assetID string) ([]Event, error)
}
