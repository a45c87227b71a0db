// Package lock provides an optional Redis-backed device lock registry for
// coordinating multiple operators. A safe-mode transaction takes the
// device's lock so two operators cannot run high-risk batches on the same
// router at once; within one process the connection manager's per-device
// serialization already guarantees this.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rosflow-network/rosflow/pkg/util"
)

// acquireScript atomically takes a device lock.
// Returns 1 on success, 0 if already locked by another holder.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseScript atomically releases a device lock with holder verification.
// Returns 1 on success, 0 on holder mismatch, -1 if the key doesn't exist.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Registry is a device lock registry backed by one Redis instance.
type Registry struct {
	client *redis.Client
}

// NewRegistry connects to the Redis instance at addr ("host:port").
func NewRegistry(addr string) (*Registry, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("lock registry at %s: %w", addr, err)
	}
	return &Registry{client: client}, nil
}

func lockKey(device string) string {
	return "ROSFLOW_LOCK|" + device
}

// Acquire takes the lock for device on behalf of holder. The lock expires
// after ttl so a crashed operator cannot wedge the device. Returns
// util.ErrDeviceLocked when another holder has it.
func (r *Registry) Acquire(ctx context.Context, device, holder string, ttl time.Duration) error {
	now := time.Now().UTC().Format(time.RFC3339)
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	result, err := acquireScript.Run(ctx, r.client, []string{lockKey(device)},
		holder, now, fmt.Sprintf("%d", seconds)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("device %s: %w", device, util.ErrDeviceLocked)
	}
	util.WithDevice(device).Debugf("Lock acquired by %s", holder)
	return nil
}

// Release releases the device lock if holder still owns it. A vanished lock
// (TTL expiry) is treated as success.
func (r *Registry) Release(ctx context.Context, device, holder string) error {
	result, err := releaseScript.Run(ctx, r.client, []string{lockKey(device)}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("lock holder mismatch for %s", device)
	}
	util.WithDevice(device).Debug("Lock released")
	return nil
}

// Holder returns the current lock holder and acquisition time for device,
// or ("", zero, nil) when unlocked.
func (r *Registry) Holder(ctx context.Context, device string) (string, time.Time, error) {
	vals, err := r.client.HGetAll(ctx, lockKey(device)).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading lock for %s: %w", device, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, nil
	}

	acquired, _ := time.Parse(time.RFC3339, vals["acquired"])
	return vals["holder"], acquired, nil
}

// Close closes the Redis connection.
func (r *Registry) Close() error {
	return r.client.Close()
}
