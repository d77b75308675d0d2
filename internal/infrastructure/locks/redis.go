package locks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisKeyPrefix    = "lock:"
	redisPollInterval = 20 * time.Millisecond
	// DefaultTTL caps how long a crashed holder can block others.
	DefaultTTL = 30 * time.Second
)

// Only delete the key if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Push the expiry out only while we still own the key.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every API instance pointing at the same Redis.
// Held keys are renewed every TTL/3 until release, so TTL only bounds how
// long a crashed holder blocks others.
type Redis struct {
	Client  *redis.Client
	Timeout time.Duration
	TTL     time.Duration
}

func NewRedis(client *redis.Client, timeout, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{Client: client, Timeout: timeout, TTL: ttl}
}

func (r *Redis) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	waitCtx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	token := uuid.New().String()
	held := make([]string, 0, len(keys))
	releaseHeld := func() {
		// Release must outlive a cancelled request context.
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer rcancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(rctx, r.Client, []string{redisKeyPrefix + held[i]}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", held[i]).Msg("lock release failed")
			}
		}
	}

	for _, k := range keys {
		if err := r.take(waitCtx, redisKeyPrefix+k, token); err != nil {
			releaseHeld()
			if isTimeout(err) {
				return nil, conflict()
			}
			return nil, err
		}
		held = append(held, k)
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go r.keepAlive(token, held, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			releaseHeld()
		})
	}, nil
}

func (r *Redis) ttl() time.Duration {
	if r.TTL <= 0 {
		return DefaultTTL
	}
	return r.TTL
}

func (r *Redis) keepAlive(token string, keys []string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ttl := r.ttl()
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
		for _, k := range keys {
			n, err := renewScript.Run(ctx, r.Client, []string{redisKeyPrefix + k}, token, ttl.Milliseconds()).Int()
			switch {
			case err != nil:
				log.Warn().Err(err).Str("key", k).Msg("lock renew failed")
			case n == 0:
				log.Error().Str("key", k).Msg("lock lost while held")
			}
		}
		cancel()
	}
}

func (r *Redis) take(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(redisPollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.Client.SetNX(ctx, key, token, r.ttl()).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
