package bot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

// PhoneLock serializes message handling per phone number so two webhook
// deliveries for the same number cannot race on the conversation row.
// It fails open: when redis is unavailable the caller proceeds unguarded.
type PhoneLock struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewPhoneLock creates a per-phone advisory lock. A nil client disables
// locking entirely.
func NewPhoneLock(client *redis.Client, ttl time.Duration, logger *logging.Logger) *PhoneLock {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PhoneLock{redis: client, ttl: ttl, logger: logger}
}

// Acquire takes the lock for a phone number, waiting briefly for a holder to
// finish. It returns a release func; release is a no-op when the lock was
// not actually held.
func (l *PhoneLock) Acquire(ctx context.Context, phone string) func() {
	if l == nil || l.redis == nil {
		return func() {}
	}

	key := "phone_lock:" + phone
	token := uuid.NewString()
	deadline := time.Now().Add(l.ttl)

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			l.logger.Warn("bot: phone lock unavailable, proceeding unguarded", "phone", phone, "error", err)
			return func() {}
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			l.logger.Warn("bot: phone lock wait exceeded, proceeding unguarded", "phone", phone)
			return func() {}
		}
		select {
		case <-ctx.Done():
			return func() {}
		case <-time.After(100 * time.Millisecond):
		}
	}

	return func() {
		// Only the holder's token may release; an expired lock grabbed by
		// another request stays intact.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		if err := l.redis.Eval(context.Background(), script, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("bot: phone lock release failed", "phone", phone, "error", err)
		}
	}
}
