/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/dflow/internal/buildinfo"
	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/visualize"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

type options struct {
	configPath       string
	workers          int
	asyncConcurrency int
	metricsAddr      string
	format           string
	zap              zap.Options
}

func main() {
	opts := &options{
		zap: zap.Options{
			Development:     true,
			DestWriter:      os.Stderr,
			StacktraceLevel: zapcore.Level(3),
			TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		},
	}
	var log logr.Logger

	root := &cobra.Command{
		Use:   "dflow",
		Short: "Run incremental dataflows over sharded workers",
		PersistentPreRun: func(*cobra.Command, []string) {
			log = zap.New(zap.UseFlagOptions(&opts.zap)).WithName("dflow")
		},
		SilenceUsage: true,
	}

	goflags := flag.NewFlagSet("dflow", flag.ExitOnError)
	opts.zap.BindFlags(goflags)
	root.PersistentFlags().AddGoFlagSet(goflags)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Dataflow config file (YAML).")
	root.PersistentFlags().IntVar(&opts.workers, "workers", 1, "Number of workers.")
	root.PersistentFlags().IntVar(&opts.asyncConcurrency, "async-concurrency", 0,
		"Maximum number of in-flight records per asynchronous map and worker (0: unbounded).")

	wordcount := &cobra.Command{
		Use:   "wordcount FILE...",
		Short: "Count the words of a sequence of files, one epoch per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := opts.dataflowConfig(cmd, log)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if opts.metricsAddr != "" {
				stop, err := serveMetrics(opts.metricsAddr, log)
				if err != nil {
					return err
				}
				defer stop()
			}

			return runWordCount(ctx, config, args, cmd.OutOrStdout(), log)
		},
	}
	wordcount.Flags().StringVar(&opts.metricsAddr, "metrics-bind-address", "",
		"The address the metric endpoint binds to (empty: disabled).")

	graph := &cobra.Command{
		Use:   "graph",
		Short: "Print the operator graph of the word count dataflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := opts.dataflowConfig(cmd, log)
			if err != nil {
				return err
			}
			gen, err := visualize.NewGenerator(opts.format)
			if err != nil {
				return err
			}

			w, err := newWordCount(config)
			if err != nil {
				return err
			}
			defer w.df.Close()

			fmt.Fprint(cmd.OutOrStdout(), gen.Generate(visualize.BuildGraph("wordcount", w.df.Describe())))
			return nil
		},
	}
	graph.Flags().StringVar(&opts.format, "format", "dot",
		fmt.Sprintf("Diagram format, one of %v.", visualize.Formats()))

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.New(version, commitHash, buildDate).String())
		},
	}

	root.AddCommand(wordcount, graph, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// dataflowConfig loads the config file, if any, and applies the flags set on the command line on
// top of it.
func (o *options) dataflowConfig(cmd *cobra.Command, log logr.Logger) (dataflow.Config, error) {
	config := dataflow.DefaultConfig()
	if o.configPath != "" {
		c, err := dataflow.LoadConfig(o.configPath)
		if err != nil {
			return config, err
		}
		config = c
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if changed["workers"] || o.configPath == "" {
		config.Workers = o.workers
	}
	if changed["async-concurrency"] {
		config.AsyncConcurrency = o.asyncConcurrency
	}
	config.Logger = log

	if err := config.Validate(); err != nil {
		return config, err
	}

	log.Info(fmt.Sprintf("starting dflow %s", buildinfo.New(version, commitHash, buildDate).String()),
		"workers", config.Workers, "async-concurrency", config.AsyncConcurrency)

	return config, nil
}

// serveMetrics exports the dataflow metrics in the Prometheus format.
func serveMetrics(addr string, log logr.Logger) (func(), error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = provider.Shutdown(ctx)
	}, nil
}
