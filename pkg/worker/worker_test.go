package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerStartShutdown(t *testing.T) {
	tc := newTestContext(t)

	tc.worker.Start()
	tc.worker.Shutdown()
}

func TestRandStringBytes(t *testing.T) {
	s := randStringBytes(8)
	assert.Len(t, s, 8)
	for _, c := range s {
		assert.Contains(t, letterBytes, string(c))
	}
}
