package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hemiko/topup_reconciler/internal/config"
	"github.com/hemiko/topup_reconciler/internal/logging"
)

const cycleLeaseKey = "topup_reconciler:cycle_lease"

// Lease serializes cycles across scheduler instances. It is an
// optimization only: the conditional writes in the store stay correct
// without it.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// NewCycleLease returns a redis-backed lease when REDIS_URL is configured
// and a no-op lease otherwise.
func NewCycleLease(lc fx.Lifecycle, cfg *config.Config, lg *logging.ZapLogger) (Lease, error) {
	if cfg.RedisURL == "" {
		return NoopLease{}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("reconciler: parse redis url error %w", err)
	}

	client := redis.NewClient(opt)

	lc.Append(
		fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		},
	)

	return newRedisLease(client, time.Duration(cfg.ReconcilerLeaseTTL)*time.Millisecond, lg), nil
}

type NoopLease struct{}

func (NoopLease) Acquire(ctx context.Context) (bool, error) { return true, nil }

func (NoopLease) Release(ctx context.Context) {}

type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
	token  string
	lg     *logging.ZapLogger
}

func newRedisLease(client *redis.Client, ttl time.Duration, lg *logging.ZapLogger) *RedisLease {
	return &RedisLease{client: client, ttl: ttl, token: uuid.NewString(), lg: lg}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, cycleLeaseKey, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reconciler: set cycle lease error %w", err)
	}

	return acquired, nil
}

// releaseLeaseScript compares the token and deletes in one step. A GET
// followed by a DEL could delete a lease another instance acquired after
// ours expired between the two calls.
var releaseLeaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release drops the lease early, best effort. The TTL reclaims it anyway
// if this instance dies mid-cycle; only our own token is ever deleted.
func (l *RedisLease) Release(ctx context.Context) {
	if err := releaseLeaseScript.Run(ctx, l.client, []string{cycleLeaseKey}, l.token).Err(); err != nil {
		l.lg.DebugCtx(ctx, "release cycle lease error", zap.Error(err))
	}
}
