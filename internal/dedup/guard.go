package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"relay/internal/constants"
	"relay/internal/event"
	"relay/internal/logger"
	"relay/pkg/metrics"
)

// Guard decides whether an inbound event has been seen recently. Platform
// sources redeliver, so ingest consults the guard before normalizing.
type Guard interface {
	Allow(ctx context.Context, ev *event.InboundEvent) bool
}

// AllowAll is the guard used when dedup is disabled.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, *event.InboundEvent) bool {
	return true
}

// RedisGuard keys each event by a content fingerprint with a TTL. SetNX makes
// the check-and-mark atomic across ingest replicas.
type RedisGuard struct {
	client   *redis.Client
	ttl      time.Duration
	failOpen bool
	logger   logger.Logger
}

func NewRedisGuard(client *redis.Client, ttl time.Duration, onError string, log logger.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGuard{
		client:   client,
		ttl:      ttl,
		failOpen: onError != constants.FallbackDeny,
		logger:   log,
	}
}

func (g *RedisGuard) Allow(ctx context.Context, ev *event.InboundEvent) bool {
	key := constants.CacheKeyPrefixEvent + Fingerprint(ev)

	first, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		g.logger.WarnwCtx(ctx, "Dedup check failed",
			"error", err,
			"fail_open", g.failOpen,
		)
		return g.failOpen
	}

	if !first {
		metrics.IncDuplicateEvent(string(ev.SourceType))
		g.logger.InfowCtx(ctx, "Dropping duplicate event", "source_type", ev.SourceType)
	}

	return first
}

// Fingerprint hashes the fields that identify one platform delivery. Two
// redeliveries of the same message collide; distinct messages from the same
// sender do not, because the timestamp participates.
func Fingerprint(ev *event.InboundEvent) string {
	origin := ev.SenderNumber
	if ev.SourceType == event.SourceNotification {
		origin = ev.PackageName
	}

	parts := strings.Join([]string{
		string(ev.SourceType),
		origin,
		ev.Content,
		strconv.FormatInt(ev.Timestamp.UnixMilli(), 10),
	}, "|")

	sum := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(sum[:])
}
