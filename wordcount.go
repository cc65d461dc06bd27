package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-logr/logr"

	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/operators"
	"github.com/l7mp/dflow/pkg/zset"
)

type (
	epoch     = dataflow.Epoch
	wordFreq  = dataflow.KV[string, zset.Diff]
	wordInput = dataflow.Input[epoch, string, zset.Diff]
)

// wordCount is the demo dataflow: words are normalized, resharded and counted, and the distinct
// word lengths are maintained alongside.
type wordCount struct {
	df      *dataflow.Dataflow[epoch]
	inputs  []*wordInput
	counts  *dataflow.Captured[epoch, wordFreq, zset.Diff]
	lengths *dataflow.Captured[epoch, int, zset.Diff]
}

func newWordCount(config dataflow.Config) (*wordCount, error) {
	w := &wordCount{
		counts:  dataflow.NewCaptured[epoch, wordFreq, zset.Diff](),
		lengths: dataflow.NewCaptured[epoch, int, zset.Diff](),
	}
	isolate := operators.FaultIsolation{Log: config.Logger.WithName("normalize")}

	df, err := dataflow.New(config, func(s *dataflow.Scope[epoch]) error {
		in, words := dataflow.NewInput[epoch, string, zset.Diff](s, "words")
		w.inputs = append(w.inputs, in)

		normalized := operators.MapWrappedNamed(words, "Normalize", isolate, strings.ToLower)
		counts := operators.Count(operators.Reshard(normalized))
		lengths := operators.Distinct(operators.MapNamedAsync(normalized, "Length",
			func(_ context.Context, word string) int { return utf8.RuneCountInString(word) }))

		dataflow.Capture(counts, "Counts", w.counts)
		dataflow.Capture(lengths, "Lengths", w.lengths)
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.df = df

	return w, nil
}

// runWordCount feeds each file as one epoch and prints the changes of the outputs per epoch.
func runWordCount(ctx context.Context, config dataflow.Config, files []string, out io.Writer, log logr.Logger) error {
	w, err := newWordCount(config)
	if err != nil {
		return err
	}
	defer w.df.Close()

	next := 0
	for i, file := range files {
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", file, err)
		}

		words := strings.FieldsFunc(string(b), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, word := range words {
			// spread the input over the workers, resharding puts each word in place
			if err := w.inputs[next].Send(word, 1); err != nil {
				return err
			}
			next = (next + 1) % len(w.inputs)
		}
		log.V(1).Info("epoch loaded", "epoch", i, "file", file, "words", len(words))

		for _, in := range w.inputs {
			if err := in.AdvanceTo(epoch(i + 1)); err != nil {
				return err
			}
		}
		if err := w.df.Run(ctx); err != nil {
			return err
		}

		w.print(out, epoch(i))
	}

	return w.df.Finish(ctx)
}

func (w *wordCount) print(out io.Writer, e epoch) {
	counts := consolidate(w.counts.Drain())
	lengths := consolidate(w.lengths.Drain())

	fmt.Fprintf(out, "epoch %d (%d count changes)\n", e, len(counts))
	for _, line := range counts {
		fmt.Fprintf(out, "  %s\n", line)
	}
	for _, line := range lengths {
		fmt.Fprintf(out, "  length %s\n", line)
	}
}

// consolidate renders a set of updates as sorted "+datum" / "-datum" lines.
func consolidate[D comparable](updates []dataflow.CapturedUpdate[D, epoch, zset.Diff]) []string {
	z := zset.New[D, zset.Diff]()
	for _, u := range updates {
		z.Add(u.Data, u.Diff)
	}

	lines := make([]string, 0, z.Len())
	for _, e := range z.Entries() {
		sign := "+"
		if e.Weight < 0 {
			sign = "-"
		}
		lines = append(lines, fmt.Sprintf("%s%v", sign, render(e.Data)))
	}
	sort.Strings(lines)
	return lines
}

func render(d any) string {
	if kv, ok := d.(wordFreq); ok {
		return fmt.Sprintf("%s=%d", kv.Key, kv.Val)
	}
	return fmt.Sprint(d)
}
