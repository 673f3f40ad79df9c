package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix       = "user:%s"
	FeedFirstPagePrefix = "feed:first:%d"
	feedFirstPageMatch  = "feed:first:*"
	BlacklistPrefix     = "blacklist:%s"
	WSTicketPrefix      = "ws_ticket:%s"
)

const (
	UserTTL          = 5 * time.Minute
	FeedFirstPageTTL = 30 * time.Second
	WSTicketTTL      = 30 * time.Second
)

func UserKey(userID string) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// FeedFirstPageKey is the shared, viewer-independent cache entry for the
// first feed page of the given size.
func FeedFirstPageKey(limit int) string {
	return fmt.Sprintf(FeedFirstPagePrefix, limit)
}

// BlacklistKey holds a revoked token ID until the token would have expired.
func BlacklistKey(jti string) string {
	return fmt.Sprintf(BlacklistPrefix, jti)
}

// WSTicketKey holds the token a single-use WebSocket ticket stands for.
func WSTicketKey(ticket string) string {
	return fmt.Sprintf(WSTicketPrefix, ticket)
}

// InvalidateFeed drops every cached first page regardless of page size.
func InvalidateFeed(ctx context.Context) {
	if client == nil {
		return
	}
	iter := client.Scan(ctx, 0, feedFirstPageMatch, 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
}
