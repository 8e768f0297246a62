package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnect(t *testing.T) {
	t.Run("Not configured", func(t *testing.T) {
		rdb, err := Connect(Config{})
		assert.Error(t, err)
		assert.Nil(t, rdb)
	})

	t.Run("Unreachable", func(t *testing.T) {
		rdb, err := Connect(Config{Addr: "127.0.0.1:1", TimeoutSeconds: 1})
		assert.Error(t, err)
		assert.Nil(t, rdb)
	})
}

func TestKey(t *testing.T) {
	assert.Equal(t, "harvest:checkpoint", Config{Prefix: "harvest"}.Key("checkpoint"))
	assert.Equal(t, "checkpoint:companies", Config{}.Key("checkpoint", "companies"))
}
