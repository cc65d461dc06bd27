package operators

import (
	"errors"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/zset"
)

var _ = Describe("MapWrapped", func() {
	It("should preserve the times and diffs of every batch", func() {
		in, out := captured[string](), captured[int]()
		df, inputs := build(config(2), func(c *dataflow.Collection[dataflow.Epoch, string, zset.Diff]) {
			capture(c, in)
			capture(MapEx(c, func(s string) int { return len(s) }), out)
		})
		defer df.Close()

		Expect(inputs[0].SendAt("one", 0, 1)).To(Succeed())
		Expect(inputs[1].SendAt("three", 0, -2)).To(Succeed())
		Expect(inputs[0].SendAt("four", 2, 3)).To(Succeed())
		Expect(inputs[1].SendAt("x", 5, 1)).To(Succeed())
		Expect(finish(df)).To(Succeed())

		Expect(out.Times()).To(Equal(in.Times()))
		Expect(out.Times()).To(Equal([]dataflow.Epoch{0, 2, 5}))
		for _, t := range in.Times() {
			want := zset.New[int, zset.Diff]()
			for _, e := range in.At(t).Entries() {
				want.Add(len(e.Data), e.Weight)
			}
			Expect(out.At(t).Equal(want)).To(BeTrue(), "batch at %s", t)
		}

		for w := 0; w < 2; w++ {
			Expect(out.ByWorker(w)).To(HaveLen(len(in.ByWorker(w))))
		}
	})

	It("should name its operators", func() {
		df, _ := build(config(1), func(c *dataflow.Collection[dataflow.Epoch, string, zset.Diff]) {
			MapEx(c, strings.ToUpper)
			MapNamed(c, "Upper", strings.ToUpper)
			MapWrapped(c, NoWrapper{}, strings.ToUpper)
			MapWrapped(c, FaultIsolation{}, strings.ToUpper)
			MapWrappedNamed(c, "Guarded", FaultIsolation{}, strings.ToUpper)
		})
		defer df.Close()

		names := operatorNames(df)
		Expect(names).To(HaveLen(6))
		Expect(names[0]).To(Equal("input"))
		Expect(names[1]).To(MatchRegexp(`^MapEx at map_test\.go:\d+$`))
		Expect(names[2]).To(MatchRegexp(`^Upper at map_test\.go:\d+$`))
		Expect(names[3]).To(MatchRegexp(`^MapWrapped\(NoWrapper\) at map_test\.go:\d+$`))
		Expect(names[4]).To(MatchRegexp(`^MapWrapped\(FaultIsolation\) at map_test\.go:\d+$`))
		Expect(names[5]).To(MatchRegexp(`^Guarded at map_test\.go:\d+$`))
	})

	It("should fail the worker on an unwrapped fault", func() {
		df, inputs := build(config(2), func(c *dataflow.Collection[dataflow.Epoch, string, zset.Diff]) {
			MapNamed(c, "Fragile", func(s string) string {
				if s == "bad" {
					panic("bad record")
				}
				return s
			})
		})
		defer df.Close()

		Expect(inputs[1].Send("bad", 1)).To(Succeed())
		err := finish(df)
		var werr *dataflow.WorkerError
		Expect(errors.As(err, &werr)).To(BeTrue())
		Expect(werr.Operator).To(HavePrefix("Fragile at map_test.go:"))
		Expect(werr.Worker).To(Equal(1))
		Expect(werr.Panic).To(Equal("bad record"))
	})

	It("should isolate and report faults when wrapped", func() {
		var (
			mu     sync.Mutex
			faults []Fault
		)
		wrapper := FaultIsolation{Log: logger, Report: func(f Fault) {
			mu.Lock()
			defer mu.Unlock()
			faults = append(faults, f)
		}}

		out := captured[string]()
		df, inputs := build(config(2), func(c *dataflow.Collection[dataflow.Epoch, string, zset.Diff]) {
			capture(MapWrapped(c, wrapper, func(s string) string {
				if s == "bad" {
					panic(errors.New("bad record"))
				}
				return strings.ToUpper(s)
			}), out)
		})
		defer df.Close()

		Expect(inputs[0].SendAt("ok", 0, 1)).To(Succeed())
		Expect(inputs[1].SendAt("fine", 0, 1)).To(Succeed())
		Expect(inputs[1].SendAt("bad", 0, 1)).To(Succeed())
		Expect(inputs[1].SendAt("later", 1, 1)).To(Succeed())
		Expect(finish(df)).To(Succeed())

		Expect(faults).To(HaveLen(1))
		Expect(faults[0].Operator).To(HavePrefix("MapWrapped(FaultIsolation) at map_test.go:"))
		Expect(faults[0].Worker).To(Equal(1))
		Expect(faults[0].Time).To(Equal("0"))
		Expect(faults[0].Value).To(MatchError("bad record"))
		Expect(faults[0].Stack).NotTo(BeEmpty())
		Expect(faults[0].Error()).To(ContainSubstring("bad record"))

		// the faulted batch is dropped, the worker carries on
		Expect(out.At(0).Equal(entries("OK"))).To(BeTrue())
		Expect(out.At(1).Equal(entries("LATER"))).To(BeTrue())
	})
})
