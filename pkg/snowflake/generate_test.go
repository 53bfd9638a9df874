package snowflake

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/test/assert"
)

func TestNextIDIsUnique(t *testing.T) {
	assert.Nil(t, Init(1, 1))

	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		id, err := NextID()
		assert.Nil(t, err)
		assert.Assert(t, !seen[id])
		seen[id] = true
	}
}
