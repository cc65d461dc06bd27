package operators

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/shard"
	"github.com/l7mp/dflow/pkg/zset"
)

type pair = dataflow.KV[string, int]

func flatten(a *dataflow.Arranged[dataflow.Epoch, string, int, zset.Diff]) *dataflow.Collection[dataflow.Epoch, pair, zset.Diff] {
	return dataflow.AsCollection(a, "Flatten", func(k string, v int) pair { return pair{Key: k, Val: v} })
}

var _ = Describe("Arrange", func() {
	It("should name arrangements after their types and call site", func() {
		df, _ := build(config(1), func(c *dataflow.Collection[dataflow.Epoch, pair, zset.Diff]) {
			Arrange(c)
			ArrangeNamed(c, "pairs")
			ArrangeSharded(c, func(string) uint64 { return 0 })
			ArrangeShardedNamed(c, func(string) uint64 { return 0 }, "pinned")
		})
		defer df.Close()

		names := operatorNames(df)
		Expect(names).To(HaveLen(5))
		Expect(names[1]).To(MatchRegexp(`^Arrange \[string, int\] at arrange_test\.go:\d+$`))
		Expect(names[2]).To(MatchRegexp(`^pairs \[string, int\] at arrange_test\.go:\d+$`))
		Expect(names[3]).To(MatchRegexp(`^Arrange \[string, int\] at arrange_test\.go:\d+$`))
		Expect(names[4]).To(MatchRegexp(`^pinned \[string, int\] at arrange_test\.go:\d+$`))
		Expect(names[1]).NotTo(Equal(names[3]))

		for _, e := range df.Describe().Edges {
			Expect(e.Exchange).To(BeTrue())
		}
	})

	It("should index every key on the worker of its canonical shard", func() {
		var arranged []*dataflow.Arranged[dataflow.Epoch, string, int, zset.Diff]
		out := captured[pair]()
		df, inputs := build(config(3), func(c *dataflow.Collection[dataflow.Epoch, pair, zset.Diff]) {
			a := Arrange(c)
			arranged = append(arranged, a)
			capture(flatten(a), out)
		})
		defer df.Close()

		keys := []string{"a", "b", "c", "d", "e", "f"}
		for i, k := range keys {
			Expect(inputs[i%3].Send(pair{Key: k, Val: i}, 1)).To(Succeed())
		}
		Expect(finish(df)).To(Succeed())

		for _, k := range keys {
			owner := shard.Worker(shard.Of(k), 3)
			for w, a := range arranged {
				agent := a.Trace()
				Expect(agent.Accumulate(k, 0).IsZero()).To(Equal(w != owner), "key %s on worker %d", k, w)
				agent.Release()
			}
		}
		for w := 0; w < 3; w++ {
			for _, u := range out.ByWorker(w) {
				Expect(shard.Worker(shard.Of(u.Data.Key), 3)).To(Equal(w))
			}
		}
		Expect(out.Updates()).To(HaveLen(len(keys)))
	})

	It("should place keys by a caller-supplied shard function", func() {
		f := func(k string) uint64 { return uint64(len(k)) }
		out := captured[pair]()
		df, inputs := build(config(2), func(c *dataflow.Collection[dataflow.Epoch, pair, zset.Diff]) {
			capture(flatten(ArrangeSharded(c, f)), out)
		})
		defer df.Close()

		Expect(inputs[0].Send(pair{Key: "xy", Val: 1}, 1)).To(Succeed())
		Expect(inputs[0].Send(pair{Key: "x", Val: 2}, 1)).To(Succeed())
		Expect(inputs[1].Send(pair{Key: "xyz", Val: 3}, 2)).To(Succeed())
		Expect(finish(df)).To(Succeed())

		Expect(out.ByWorker(0)).To(ConsistOf(dataflow.Update[pair, dataflow.Epoch, zset.Diff]{Data: pair{Key: "xy", Val: 1}, Diff: 1}))
		Expect(out.ByWorker(1)).To(ConsistOf(
			dataflow.Update[pair, dataflow.Epoch, zset.Diff]{Data: pair{Key: "x", Val: 2}, Diff: 1},
			dataflow.Update[pair, dataflow.Epoch, zset.Diff]{Data: pair{Key: "xyz", Val: 3}, Diff: 2}))
	})

	It("should share one trace among its consumers", func() {
		var arranged *dataflow.Arranged[dataflow.Epoch, string, int, zset.Diff]
		left, right := captured[pair](), captured[pair]()
		df, inputs := build(config(1), func(c *dataflow.Collection[dataflow.Epoch, pair, zset.Diff]) {
			arranged = ArrangeNamed(c, "shared")
			capture(flatten(arranged), left)
			capture(flatten(arranged), right)
		})

		Expect(inputs[0].Send(pair{Key: "k", Val: 1}, 1)).To(Succeed())
		Expect(finish(df)).To(Succeed())
		Expect(left.Accumulate().Equal(right.Accumulate())).To(BeTrue())

		agent := arranged.Trace()
		Expect(agent.Len()).To(Equal(1))
		df.Close()
		Expect(agent.Refs()).To(Equal(1))
		Expect(agent.Len()).To(Equal(1))
		agent.Release()
		Expect(agent.Len()).To(Equal(0))
	})
})
