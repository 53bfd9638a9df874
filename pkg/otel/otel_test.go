package otel

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/test/assert"
)

func TestGRPCEndpointStripsScheme(t *testing.T) {
	assert.DeepEqual(t, "collector:4317", grpcEndpoint("http://collector:4317"))
	assert.DeepEqual(t, "collector:4317", grpcEndpoint("https://collector:4317"))
	assert.DeepEqual(t, "localhost:4317", grpcEndpoint("localhost:4317"))
}
