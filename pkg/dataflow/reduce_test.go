package dataflow

import (
	"context"
	"fmt"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/shard"
	"github.com/l7mp/dflow/pkg/zset"
)

type counts[T Timestamp[T]] struct {
	df                   *Dataflow[T]
	inputs               []*Input[T, string, zset.Diff]
	total, general       *Captured[T, KV[string, zset.Diff], zset.Diff]
	totalSet, generalSet *Captured[T, string, zset.Diff]
}

// countflow arranges a word input and counts it with both algorithm variants. The total variant is
// only meaningful for Epoch times.
func countflow[T Timestamp[T]](workers, threshold int, withTotal bool) *counts[T] {
	c := &counts[T]{
		total:      NewCaptured[T, KV[string, zset.Diff], zset.Diff](),
		general:    NewCaptured[T, KV[string, zset.Diff], zset.Diff](),
		totalSet:   NewCaptured[T, string, zset.Diff](),
		generalSet: NewCaptured[T, string, zset.Diff](),
	}
	config := testConfig(workers)
	config.TraceMergeThreshold = threshold

	df, err := New(config, func(s *Scope[T]) error {
		in, words := NewInput[T, string, zset.Diff](s, "words")
		c.inputs = append(c.inputs, in)
		a := ArrangeSelfCore(words, ExchangeBy(func(u Update[string, T, zset.Diff]) uint64 {
			return shard.Of(u.Data)
		}), "Arrange")
		if withTotal {
			Capture(CountTotal(a, "CountTotal"), "Capture", c.total)
			Capture(DistinctTotal(a, "DistinctTotal"), "Capture", c.totalSet)
		}
		Capture(Count(a, "Count"), "Capture", c.general)
		Capture(Distinct(a, "Distinct"), "Capture", c.generalSet)
		return nil
	})
	Expect(err).NotTo(HaveOccurred())
	c.df = df
	return c
}

func count(word string, n zset.Diff) zset.Entry[KV[string, zset.Diff], zset.Diff] {
	return zset.Entry[KV[string, zset.Diff], zset.Diff]{Data: KV[string, zset.Diff]{Key: word, Val: n}, Weight: 1}
}

func present(words ...string) *zset.ZSet[string, zset.Diff] {
	ret := zset.New[string, zset.Diff]()
	for _, w := range words {
		ret.Add(w, 1)
	}
	return ret
}

var _ = Describe("Count and distinct", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should count words over epochs", func() {
		c := countflow[Epoch](2, DefaultTraceMergeThreshold, true)
		defer c.df.Close()

		Expect(c.inputs[0].Send("a", 1)).To(Succeed())
		Expect(c.inputs[1].Send("a", 1)).To(Succeed())
		Expect(c.inputs[1].Send("b", 1)).To(Succeed())
		advance(c.inputs, 1)
		Expect(c.inputs[0].Send("b", -1)).To(Succeed())
		Expect(c.inputs[0].Send("c", 3)).To(Succeed())
		Expect(c.df.Finish(ctx)).To(Succeed())

		for _, out := range []*Captured[Epoch, KV[string, zset.Diff], zset.Diff]{c.total, c.general} {
			Expect(out.AccumulateAt(0).Equal(zset.FromEntries(count("a", 2), count("b", 1)))).To(BeTrue())
			Expect(out.AccumulateAt(1).Equal(zset.FromEntries(count("a", 2), count("c", 3)))).To(BeTrue())
		}
		for _, out := range []*Captured[Epoch, string, zset.Diff]{c.totalSet, c.generalSet} {
			Expect(out.AccumulateAt(0).Equal(present("a", "b"))).To(BeTrue())
			Expect(out.AccumulateAt(1).Equal(present("a", "c"))).To(BeTrue())
			Expect(out.At(1).Equal(zset.FromEntries(
				zset.Entry[string, zset.Diff]{Data: "b", Weight: -1},
				zset.Entry[string, zset.Diff]{Data: "c", Weight: 1}))).To(BeTrue())
		}
	})

	It("should produce identical output with both variants on random epochs", func() {
		rnd := rand.New(rand.NewPCG(1, 2))
		for _, threshold := range []int{0, 1} {
			c := countflow[Epoch](3, threshold, true)

			live := map[string]int{}
			for epoch := Epoch(0); epoch < 20; epoch++ {
				advance(c.inputs, epoch)
				for i := 0; i < 10; i++ {
					w := fmt.Sprintf("w%d", rnd.IntN(6))
					in := c.inputs[rnd.IntN(len(c.inputs))]
					if live[w] > 0 && rnd.IntN(3) == 0 {
						Expect(in.Send(w, -1)).To(Succeed())
						live[w]--
						continue
					}
					Expect(in.Send(w, 1)).To(Succeed())
					live[w]++
				}
			}
			Expect(c.df.Finish(ctx)).To(Succeed())

			for epoch := Epoch(0); epoch < 20; epoch++ {
				Expect(c.total.At(epoch).Equal(c.general.At(epoch))).To(BeTrue(),
					"count differs at %d: %s vs %s", epoch, c.total.At(epoch), c.general.At(epoch))
				Expect(c.totalSet.At(epoch).Equal(c.generalSet.At(epoch))).To(BeTrue(),
					"distinct differs at %d", epoch)
			}

			final := zset.New[KV[string, zset.Diff], zset.Diff]()
			for w, n := range live {
				if n != 0 {
					final.Add(KV[string, zset.Diff]{Key: w, Val: zset.Diff(n)}, 1)
				}
			}
			Expect(c.general.Accumulate().Equal(final)).To(BeTrue())
			c.df.Close()
		}
	})

	It("should correct outputs at the join of incomparable times", func() {
		c := countflow[Product](2, DefaultTraceMergeThreshold, false)
		defer c.df.Close()

		Expect(c.inputs[0].SendAt("a", Product{Outer: 0, Inner: 1}, 1)).To(Succeed())
		Expect(c.inputs[1].SendAt("a", Product{Outer: 1, Inner: 0}, 1)).To(Succeed())
		Expect(c.inputs[1].SendAt("b", Product{Outer: 1, Inner: 0}, 1)).To(Succeed())
		Expect(c.inputs[0].SendAt("b", Product{Outer: 1, Inner: 1}, -1)).To(Succeed())
		Expect(c.df.Finish(ctx)).To(Succeed())

		Expect(c.general.AccumulateAt(Product{Outer: 0, Inner: 1}).Equal(
			zset.FromEntries(count("a", 1)))).To(BeTrue())
		Expect(c.general.AccumulateAt(Product{Outer: 1, Inner: 0}).Equal(
			zset.FromEntries(count("a", 1), count("b", 1)))).To(BeTrue())
		Expect(c.general.AccumulateAt(Product{Outer: 1, Inner: 1}).Equal(
			zset.FromEntries(count("a", 2)))).To(BeTrue())
		Expect(c.general.AccumulateAt(Product{Outer: 5, Inner: 5}).Equal(
			zset.FromEntries(count("a", 2)))).To(BeTrue())

		Expect(c.generalSet.AccumulateAt(Product{Outer: 0, Inner: 0}).IsZero()).To(BeTrue())
		Expect(c.generalSet.AccumulateAt(Product{Outer: 1, Inner: 0}).Equal(present("a", "b"))).To(BeTrue())
		Expect(c.generalSet.AccumulateAt(Product{Outer: 1, Inner: 1}).Equal(present("a"))).To(BeTrue())
	})
})
