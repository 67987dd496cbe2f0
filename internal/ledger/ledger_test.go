package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAddContains(t *testing.T) {
	t.Parallel()

	l := New()
	assert.False(t, l.Contains("1001"))
	assert.Equal(t, 0, l.Len())

	l.Add("1001", "1002")
	l.Add("1001")
	assert.True(t, l.Contains("1001"))
	assert.True(t, l.Contains("1002"))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []string{"1001", "1002"}, l.Snapshot())
}

func TestLedgerFilter(t *testing.T) {
	t.Parallel()

	l := New()
	l.Add("1001")
	listing := map[string]string{
		"1001": "https://a.example/x",
		"1002": "https://b.example/y",
	}

	fresh := l.Filter(listing)
	require.Len(t, fresh, 1)
	assert.Equal(t, "https://b.example/y", fresh["1002"])
	assert.Len(t, listing, 2, "input must not be modified")

	assert.Empty(t, l.Filter(nil))
}

func TestLedgerConcurrentAccess(t *testing.T) {
	t.Parallel()

	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("%d", i%10)
			l.Add(id)
			_ = l.Contains(id)
			_ = l.Filter(map[string]string{id: "u"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, l.Len())
}
