package classify

import (
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// transientRedisPrefixes are server error prefixes that clear up without
// client intervention.
var transientRedisPrefixes = []string{
	"LOADING ",
	"BUSY ",
	"TRYAGAIN ",
	"CLUSTERDOWN ",
	"MASTERDOWN ",
	"READONLY ",
}

// IsRedisTransient reports whether err is a Redis failure worth retrying:
// a transient server reply or a network failure. A missing key (redis.Nil)
// and a closed client are never transient.
func IsRedisTransient(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return false
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range transientRedisPrefixes {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
		return false
	}

	return IsNetwork(err)
}

// Redis retries transient Redis failures and gives up on everything else,
// including redis.Nil.
func Redis() Classifier {
	return Predicate(IsRedisTransient)
}
