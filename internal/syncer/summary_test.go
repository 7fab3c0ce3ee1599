package syncer

import (
	"errors"
	"sync"
	"testing"

	"github.com/openmined/bucketsync/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestSummary_ConcurrentUpdates(t *testing.T) {
	var s Summary
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.succeed(10)
			s.skip()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Succeeded)
	assert.Equal(t, 50, s.Skipped)
	assert.EqualValues(t, 500, s.Bytes)
	assert.NoError(t, s.Err())
}

func TestSummary_MergeAndErr(t *testing.T) {
	a := &Summary{}
	a.succeed(1024)

	b := &Summary{}
	b.fail(OpPull, "x.txt", errs.IO("get", "x.txt", errors.New("reset")))
	b.skip()

	a.Merge(b)
	a.Merge(nil)
	a.Merge(a)

	assert.Equal(t, 1, a.Succeeded)
	assert.Equal(t, 1, a.Skipped)
	assert.Equal(t, 1, a.Failed)
	assert.ErrorIs(t, a.Err(), errs.ErrIO)
	assert.Equal(t, "1 succeeded, 1 skipped, 1 failed (1.0 kB)", a.String())
}
