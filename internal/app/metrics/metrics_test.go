package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Registry_counters(t *testing.T) {
	reg := NewRegistry()

	reg.ConnOpened()
	reg.ConnOpened()
	reg.ConnClosed()

	reg.MessageSent()
	reg.MessageReceived()
	reg.MessageReceived()

	reg.ErrorOccurred()

	snap := reg.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveConnections)
	assert.Equal(t, int64(1), snap.MessagesSent)
	assert.Equal(t, int64(2), snap.MessagesReceived)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, int64(1), reg.ErrorCount())
	assert.Greater(t, snap.UptimeSeconds, 0.0)
	assert.Greater(t, snap.MessagesPerSecond, 0.0)
}

func Test_Registry_concurrentIncrements(t *testing.T) {
	reg := NewRegistry()

	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				reg.MessageSent()
				reg.MessageReceived()
			}
		}()
	}
	wg.Wait()

	snap := reg.Snapshot()
	assert.Equal(t, int64(workers*perWorker), snap.MessagesSent)
	assert.Equal(t, int64(workers*perWorker), snap.MessagesReceived)
}
