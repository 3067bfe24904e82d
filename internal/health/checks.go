package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is reported by BreakerCheck while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerCheck fails while the circuit reported by state is open. A
// half-open circuit is healthy since it is probing for recovery.
func BreakerCheck(state func() gobreaker.State) CheckFunc {
	return func(context.Context) error {
		if state() == gobreaker.StateOpen {
			return ErrCircuitOpen
		}
		return nil
	}
}

// RedisCheck pings a Redis server.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}

// TCPCheck dials addr and closes the connection.
func TCPCheck(addr string) CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn.Close()
	}
}
