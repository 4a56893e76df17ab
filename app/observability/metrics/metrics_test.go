package metrics

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ConcurrentFirstUse(t *testing.T) {
	const callers = 16
	var wg sync.WaitGroup
	got := make([]*AppMetrics, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = Get()
		}(i)
	}
	wg.Wait()

	require.NotNil(t, got[0])
	for _, m := range got {
		assert.Same(t, got[0], m)
	}
	assert.NotPanics(t, func() {
		Get().SignupsTotal.Add(context.Background(), 1, Outcome("success"))
	})
}
