package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisArgsMasksSecretsAndPayloads(t *testing.T) {
	ctx := context.Background()

	auth := redis.NewStatusCmd(ctx, "auth", "user", "hunter2")
	assert.Equal(t, "[PROTECTED]", redisArgs(auth))

	pub := redis.NewIntCmd(ctx, "publish", "im:thread:42", `{"content":"private"}`)
	args := redisArgs(pub)
	assert.Contains(t, args, "im:thread:42")
	assert.NotContains(t, args, "private")
}

func TestIgnoreRedisErr(t *testing.T) {
	assert.False(t, ignoreRedisErr("get", nil))
	assert.True(t, ignoreRedisErr("get", redis.Nil))
	assert.True(t, ignoreRedisErr("client", errors.New("ERR unknown subcommand 'setinfo'")))
	assert.False(t, ignoreRedisErr("set", errors.New("OOM command not allowed")))
}
