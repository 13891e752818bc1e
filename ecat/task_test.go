package ecat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/logger"
)

func TestTaskManager(t *testing.T) {
	require := require.New(t)

	t.Run("Start And Stop", func(t *testing.T) {
		mgr := NewTaskManager(context.Background(), logger.GetLogger())

		var count atomic.Int32
		err := mgr.Start("counter", func() bool {
			count.Add(1)
			time.Sleep(time.Millisecond)
			return true
		})
		require.NoError(err)
		require.Equal(1, mgr.TaskCount())

		time.Sleep(20 * time.Millisecond)
		mgr.Stop()
		mgr.Wait()

		require.Equal(0, mgr.TaskCount())
		require.Positive(count.Load())
	})

	t.Run("Task Terminates Itself", func(t *testing.T) {
		mgr := NewTaskManager(context.Background(), logger.GetLogger())

		var count atomic.Int32
		err := mgr.Start("oneshot", func() bool {
			return count.Add(1) < 3
		})
		require.NoError(err)

		mgr.Wait()
		require.Equal(int32(3), count.Load())
	})

	t.Run("Interval Task", func(t *testing.T) {
		mgr := NewTaskManager(context.Background(), logger.GetLogger())

		var count atomic.Int32
		_, err := mgr.StartInterval("ticker", func() bool {
			count.Add(1)
			return true
		}, time.Millisecond, true)
		require.NoError(err)

		time.Sleep(20 * time.Millisecond)
		require.NoError(mgr.StopInterval("ticker"))
		mgr.Stop()
		mgr.Wait()

		require.Positive(count.Load())
	})

	t.Run("Duplicate Interval Name", func(t *testing.T) {
		mgr := NewTaskManager(context.Background(), logger.GetLogger())
		defer func() {
			mgr.Stop()
			mgr.Wait()
		}()

		_, err := mgr.StartInterval("dup", func() bool { return true }, time.Second, false)
		require.NoError(err)

		_, err = mgr.StartInterval("dup", func() bool { return true }, time.Second, false)
		require.Error(err)
	})

	t.Run("Panic Recovery", func(t *testing.T) {
		mgr := NewTaskManager(context.Background(), logger.GetLogger())

		err := mgr.Start("panicky", func() bool {
			panic("boom")
		})
		require.NoError(err)

		mgr.Stop()
		mgr.Wait()
	})
}
