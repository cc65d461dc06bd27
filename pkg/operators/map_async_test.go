package operators

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/zset"
)

var _ = Describe("MapAsync", func() {
	It("should emit every record of a batch regardless of completion order", func() {
		yDone := make(chan struct{})
		var (
			mu    sync.Mutex
			order []int
		)

		out := captured[int]()
		df, inputs := build(config(1), func(c *dataflow.Collection[dataflow.Epoch, int, zset.Diff]) {
			capture(MapAsync(c, func(_ context.Context, d int) int {
				if d == 3 {
					<-yDone
				} else {
					defer close(yDone)
				}
				mu.Lock()
				order = append(order, d)
				mu.Unlock()
				return 2 * d
			}), out)
		})
		defer df.Close()

		Expect(inputs[0].Send(3, 1)).To(Succeed())
		Expect(inputs[0].Send(4, 1)).To(Succeed())
		Expect(finish(df)).To(Succeed())

		Expect(order).To(Equal([]int{4, 3}))
		Expect(out.Updates()).To(HaveLen(2))
		Expect(out.At(0).Equal(entries(6, 8))).To(BeTrue())
	})

	It("should keep the time and diff of every record", func() {
		out := captured[int]()
		df, inputs := build(config(2), func(c *dataflow.Collection[dataflow.Epoch, int, zset.Diff]) {
			capture(MapNamedAsync(c, "Slow", func(_ context.Context, d int) int {
				time.Sleep(time.Duration(10-d) * time.Millisecond)
				return d * 10
			}), out)
		})
		defer df.Close()

		for d := 0; d < 10; d++ {
			Expect(inputs[d%2].SendAt(d, dataflow.Epoch(d%3), zset.Diff(d+1))).To(Succeed())
		}
		Expect(finish(df)).To(Succeed())

		Expect(out.Times()).To(Equal([]dataflow.Epoch{0, 1, 2}))
		for _, u := range out.Updates() {
			d := u.Data / 10
			Expect(u.Time).To(Equal(dataflow.Epoch(d % 3)))
			Expect(u.Diff).To(Equal(zset.Diff(d + 1)))
			Expect(u.Worker).To(Equal(d % 2))
		}
		Expect(out.Updates()).To(HaveLen(10))
	})

	It("should bound the number of records in flight", func() {
		cfg := config(1)
		cfg.AsyncConcurrency = 2
		var inflight, peak atomic.Int32

		out := captured[int]()
		df, inputs := build(cfg, func(c *dataflow.Collection[dataflow.Epoch, int, zset.Diff]) {
			capture(MapAsync(c, func(_ context.Context, d int) int {
				n := inflight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inflight.Add(-1)
				return d
			}), out)
		})
		defer df.Close()

		for d := 0; d < 12; d++ {
			Expect(inputs[0].Send(d, 1)).To(Succeed())
		}
		Expect(finish(df)).To(Succeed())

		Expect(peak.Load()).To(BeNumerically("<=", 2))
		Expect(out.Updates()).To(HaveLen(12))
	})

	It("should fail the worker when a record panics", func() {
		df, inputs := build(config(1), func(c *dataflow.Collection[dataflow.Epoch, int, zset.Diff]) {
			MapNamedAsync(c, "Doomed", func(_ context.Context, d int) int {
				if d == 13 {
					panic("unlucky")
				}
				return d
			})
		})
		defer df.Close()

		Expect(inputs[0].Send(1, 1)).To(Succeed())
		Expect(inputs[0].Send(13, 1)).To(Succeed())
		err := finish(df)

		var werr *dataflow.WorkerError
		Expect(errors.As(err, &werr)).To(BeTrue())
		Expect(werr.Operator).To(HavePrefix("Doomed at map_async_test.go:"))

		var fault *AsyncFault
		Expect(errors.As(err, &fault)).To(BeTrue())
		Expect(fault.Value).To(Equal("unlucky"))
		Expect(fault.Stack).NotTo(BeEmpty())
	})

	It("should name its operators after the call site", func() {
		df, _ := build(config(1), func(c *dataflow.Collection[dataflow.Epoch, int, zset.Diff]) {
			MapAsync(c, func(_ context.Context, d int) int { return d })
			MapNamedAsync(c, "Lookup", func(_ context.Context, d int) int { return d })
		})
		defer df.Close()

		names := operatorNames(df)
		Expect(names[1]).To(MatchRegexp(`^MapAsync at map_async_test\.go:\d+$`))
		Expect(names[2]).To(MatchRegexp(`^Lookup at map_async_test\.go:\d+$`))
	})

	It("should refuse a batch while results of the previous one are pending", func() {
		m := &asyncMapper[dataflow.Epoch, int, int, zset.Diff]{
			name:  "Stale",
			logic: func(_ context.Context, d int) int { return d * 2 },
		}
		batch := []dataflow.Update[int, dataflow.Epoch, zset.Diff]{{Data: 1, Time: 0, Diff: 1}, {Data: 2, Time: 0, Diff: 1}}

		m.run(context.Background(), batch)
		Expect(m.results).To(ConsistOf(
			dataflow.Update[int, dataflow.Epoch, zset.Diff]{Data: 2, Time: 0, Diff: 1},
			dataflow.Update[int, dataflow.Epoch, zset.Diff]{Data: 4, Time: 0, Diff: 1}))

		Expect(func() { m.run(context.Background(), batch) }).To(
			PanicWith(ContainSubstring(`operator "Stale": result buffer holds 2 records`)))

		m.results = m.results[:0]
		m.run(context.Background(), batch)
		Expect(m.results).To(HaveLen(2))
	})
})
