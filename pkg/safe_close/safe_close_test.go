package safe_close

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeClose_WaitsForAllWorkers(t *testing.T) {
	sc := NewSafeClose()
	var stopped atomic.Int32

	for i := 0; i < 3; i++ {
		sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			<-closeSignal
			stopped.Add(1)
		})
	}

	sc.SendCloseSignal(nil)
	assert.NoError(t, sc.WaitClosed())
	assert.Equal(t, int32(3), stopped.Load())
}

func TestSafeClose_KeepsFirstError(t *testing.T) {
	sc := NewSafeClose()
	first := errors.New("listen failed")

	sc.SendCloseSignal(first)
	sc.SendCloseSignal(errors.New("second"))
	sc.SendCloseSignal(nil)

	assert.ErrorIs(t, sc.WaitClosed(), first)
}
