package chathub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStatsChannel is the pub/sub channel stats snapshots go to.
const DefaultStatsChannel = "randomchat:stats"

// StatsPublisher fans hub stats out over redis pub/sub so external
// dashboards can watch a fleet of hubs. A nil publisher is a no-op;
// matching state itself never touches redis.
type StatsPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewStatsPublisher wraps a redis client. Passing a nil client returns
// a nil publisher, which every caller tolerates.
func NewStatsPublisher(rdb *redis.Client, channel string) *StatsPublisher {
	if rdb == nil {
		return nil
	}
	if channel == "" {
		channel = DefaultStatsChannel
	}
	return &StatsPublisher{rdb: rdb, channel: channel}
}

// Publish serializes and fires one snapshot. Failures are reported,
// never fatal.
func (p *StatsPublisher) Publish(snap StatsSnapshot) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.rdb.Publish(ctx, p.channel, body).Err()
}
