package redis

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/test/assert"

	"HydroMed/config"
)

func TestKeySkipsEmptyParts(t *testing.T) {
	old := config.Cfg.RedisPrefix
	defer func() { config.Cfg.RedisPrefix = old }()

	config.Cfg.RedisPrefix = "hm"
	assert.DeepEqual(t, "hm:lock:adherence:42", Key("lock", "", "adherence", "42"))

	config.Cfg.RedisPrefix = ""
	assert.DeepEqual(t, "hydromed:report", Key("report"))
}
