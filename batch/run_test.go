package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRunCollectsPerItem(t *testing.T) {
	Convey("run fans out and keeps one result per item", t, func() {
		items := []string{"a", "b", "c", "d", "e"}
		var calls int32
		worker := func(ctx context.Context, item string) (any, error) {
			atomic.AddInt32(&calls, 1)
			if item == "c" {
				return nil, errors.New("c is broken")
			}
			return "data-" + item, nil
		}

		var mu sync.Mutex
		okCount, failCount := 0, 0
		onItem := func(item string, res ItemResult) {
			mu.Lock()
			defer mu.Unlock()
			if res.Ok {
				okCount++
			} else {
				failCount++
			}
		}

		results := Run(context.Background(), items, worker, Options{
			MaxConcurrent: 2,
			BatchSize:     2,
			OnItem:        onItem,
		})

		So(len(results), ShouldEqual, 5)
		So(atomic.LoadInt32(&calls), ShouldEqual, 5)
		So(results["a"].Ok, ShouldBeTrue)
		So(results["a"].Data, ShouldEqual, "data-a")
		So(results["c"].Ok, ShouldBeFalse)
		So(results["c"].Error, ShouldContainSubstring, "c is broken")
		So(results["c"].Cancelled, ShouldBeFalse)
		So(okCount, ShouldEqual, 4)
		So(failCount, ShouldEqual, 1)
	})
}

func TestRunDefaults(t *testing.T) {
	Convey("zero knobs fall back to serial single-slot dispatch", t, func() {
		var calls int32
		worker := func(ctx context.Context, item string) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		}

		results := Run(context.Background(), []string{"x", "y", "z"}, worker, Options{})

		So(atomic.LoadInt32(&calls), ShouldEqual, 3)
		So(len(results), ShouldEqual, 3)
		So(results["x"].Ok, ShouldBeTrue)
	})
}

func TestRunBoundsConcurrency(t *testing.T) {
	Convey("at most MaxConcurrent workers run at once", t, func() {
		var inFlight, peak int32
		worker := func(ctx context.Context, item string) (any, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return nil, nil
		}

		items := make([]string, 12)
		for i := range items {
			items[i] = fmt.Sprintf("t-%d", i)
		}
		Run(context.Background(), items, worker, Options{MaxConcurrent: 3, BatchSize: 12})

		So(atomic.LoadInt32(&peak), ShouldBeLessThanOrEqualTo, 3)
		So(atomic.LoadInt32(&peak), ShouldBeGreaterThan, 0)
	})
}

func TestRunCancelBetweenChunks(t *testing.T) {
	Convey("cancelling during the first chunk skips the rest", t, func() {
		task := NewRegistry().Create(4)
		var calls, onItemCalls int32
		worker := func(ctx context.Context, item string) (any, error) {
			atomic.AddInt32(&calls, 1)
			task.Cancel()
			return "done", nil
		}

		results := Run(context.Background(), []string{"a", "b", "c", "d"}, worker, Options{
			MaxConcurrent: 1,
			BatchSize:     2,
			OnItem:        func(string, ItemResult) { atomic.AddInt32(&onItemCalls, 1) },
			Cancelled:     task.Cancelled,
		})

		So(len(results), ShouldEqual, 4)
		So(results["a"].Ok, ShouldBeTrue)
		So(results["c"].Cancelled, ShouldBeTrue)
		So(results["c"].Error, ShouldEqual, "cancelled")
		So(results["d"].Cancelled, ShouldBeTrue)
		// the sibling in the first chunk may or may not slip in before the
		// flag is observed
		So(atomic.LoadInt32(&calls), ShouldBeLessThanOrEqualTo, 2)
		So(atomic.LoadInt32(&onItemCalls), ShouldEqual, atomic.LoadInt32(&calls))
	})
}

func TestRunAlreadyCancelled(t *testing.T) {
	Convey("a cancelled task dispatches nothing", t, func() {
		task := NewRegistry().Create(2)
		task.Cancel()

		var calls int32
		worker := func(ctx context.Context, item string) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		}

		results := Run(context.Background(), []string{"a", "b"}, worker, Options{
			MaxConcurrent: 4,
			BatchSize:     10,
			Cancelled:     task.Cancelled,
		})

		So(atomic.LoadInt32(&calls), ShouldEqual, 0)
		So(results["a"].Cancelled, ShouldBeTrue)
		So(results["b"].Cancelled, ShouldBeTrue)
	})
}

func TestItemLabel(t *testing.T) {
	Convey("log labels never expose a full token", t, func() {
		So(itemLabel("short"), ShouldEqual, "short")
		So(itemLabel("0123456789abcdef"), ShouldEqual, "0123456789abcdef")
		So(itemLabel("0123456789abcdefX"), ShouldEqual, "0123456789abcdef...")
	})
}
