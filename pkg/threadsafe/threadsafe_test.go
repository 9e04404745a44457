package threadsafe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTime(t *testing.T) {
	base := time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)
	held := NewTime(base)

	held.Extend(base.Add(-time.Minute))
	assert.Equal(t, base, held.Get())

	held.Extend(base.Add(time.Minute))
	assert.Equal(t, base.Add(time.Minute), held.Get())
	assert.True(t, held.Before(base))
	assert.False(t, held.Before(base.Add(time.Minute)))

	held.Set(base)
	assert.Equal(t, base, held.Get())
}

func TestTime_ConcurrentExtend(t *testing.T) {
	base := time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)
	held := NewTime(base)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held.Extend(base.Add(time.Duration(i) * time.Second))
		}()
	}
	wg.Wait()
	assert.Equal(t, base.Add(49*time.Second), held.Get())
}
