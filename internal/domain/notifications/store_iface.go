package notifications

import "context"

type StoreAPI interface {
	List(ctx context.Context, scope string, q FeedQuery) ([]Notification, error)
}
