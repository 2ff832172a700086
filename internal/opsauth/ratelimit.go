package opsauth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned once a caller has exhausted its login
// attempt budget for the current window.
var ErrRateLimited = errors.New("opsauth: too many login attempts")

// loginWindow and loginBurst bound how many login attempts (successful or
// not) an IP may make before being locked out, per spec.md's ops-login lockout requirement.
const (
	loginWindow = 5 * time.Minute
	loginBurst  = 5
)

var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if tonumber(n) == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// LoginLimiter throttles login attempts per client IP using a fixed
// window counter in Redis.
type LoginLimiter struct {
	client *redis.Client
}

func NewLoginLimiter(client *redis.Client) *LoginLimiter {
	return &LoginLimiter{client: client}
}

// Allow increments the attempt counter for ip and returns ErrRateLimited
// once the count exceeds loginBurst within loginWindow.
func (l *LoginLimiter) Allow(ctx context.Context, ip string) error {
	n, err := incrScript.Run(ctx, l.client, []string{"opsauth:login:" + ip}, loginWindow.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n > loginBurst {
		return ErrRateLimited
	}
	return nil
}
