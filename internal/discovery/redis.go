// Package discovery resolves service endpoint names to network addresses
// through a shared Redis key space. Instances advertise themselves under
// pulsegate:endpoints:<name>; the router's forwarding path looks names up
// at dispatch time.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const endpointKeyPrefix = "pulsegate:endpoints:"

// RedisResolver resolves endpoint names from the shared registry.
type RedisResolver struct {
	client *redis.Client
}

func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

// Resolve looks up the address registered for name. ok is false when no
// entry exists; err is reserved for transport failures.
func (r *RedisResolver) Resolve(ctx context.Context, name string) (addr string, ok bool, err error) {
	addr, err = r.client.Get(ctx, endpointKeyPrefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve endpoint %s: %w", name, err)
	}
	return addr, true, nil
}

// Advertise registers addr under name with a TTL. Callers re-advertise
// periodically; a crashed instance ages out of the registry on its own.
func (r *RedisResolver) Advertise(ctx context.Context, name, addr string, ttl time.Duration) error {
	if err := r.client.Set(ctx, endpointKeyPrefix+name, addr, ttl).Err(); err != nil {
		return fmt.Errorf("advertise endpoint %s: %w", name, err)
	}
	log.Printf("[Discovery] Advertised %s -> %s (ttl=%v)", name, addr, ttl)
	return nil
}
