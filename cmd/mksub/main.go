/*
Package main is the command-line entry point for mksub.

mksub prepends every ordered tuple of 1..k wordlist entries to each base
domain and streams the resulting names to stdout or to one or more output
shards. Generation runs on a bounded worker pool; lines pass through a
bounded queue and are dealt round-robin to shard writers, so memory stays
flat no matter how large the fan-out is.

Flags can also be supplied through MKSUB_* environment variables or a config
file (--config). SIGINT and SIGTERM stop generation, drain everything already
generated and flush every shard before exiting.
*/
package main

/*
mksub — fast subdomain permutation generator in Go
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/x-stp/mksub/internal/core"
	"github.com/x-stp/mksub/internal/metrics"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "mksub",
	Short: "mksub - generate subdomains by prepending wordlist entries to base domains",
	Long: `Generate subdomains by prepending wordlist entries to base domains up to a specified depth.
Outputs include every depth in [1..level]. Optimized for very large wordlists and high fan-out.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(cmd, configFile)
		if err != nil {
			return err
		}
		return run(opts)
	},
}

func init() {
	bindFlags(rootCmd)
}

// bindFlags registers every flag on cmd.
func bindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "Config file (yaml, toml or json) with flag values")

	f.StringP("domain", "d", "", "Single base domain (e.g. example.com)")
	f.String("domain-file", "", "File with base domains, one per line")
	f.StringP("wordlist", "w", "", "Wordlist file, one token per line")
	f.StringP("regex", "r", "", "Regex filter for wordlist entries (matched anywhere)")
	f.Bool("ci-regex", true, "Match the regex case-insensitively")
	f.IntP("level", "l", 1, "Subdomain depth; every depth from 1 to level is generated")
	f.IntP("threads", "t", core.DefaultWorkers, "Number of generation workers")
	f.Int("max-threads", core.DefaultMaxThreads, "Global hard cap on generation workers")

	f.StringP("output", "o", "", "Write results to this file instead of stdout")
	f.Bool("silent", true, "Skip writing to stdout; forced off when --output is omitted")
	f.Int("shards", 1, "Number of output files written round-robin (stdout is always one stream)")
	f.Int("buffer-mb", core.DefaultShardBufferMB, "Per-shard write buffer in MiB")
	f.Int("queue", core.DefaultQueueCapacity, "Capacity of the generation queue")
	f.Bool("compress", false, "Gzip output files")
	f.Duration("flush-interval", core.DefaultFlushInterval, "Flush partially filled buffers at least this often (0 disables)")

	f.Float64("rate", 0, "Maximum lines per second across all workers (0 for unlimited)")
	f.Bool("pin-workers", false, "Pin generation workers to CPUs (Linux only)")
	f.Bool("stats", false, "Show progress statistics on stderr")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.BoolP("verbose", "v", false, "Log per-level progress")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, core.Diagnostic(err))
		os.Exit(core.ExitCode(err))
	}
}

// run wires inputs, metrics, signals and statistics around one engine run.
func run(opts *options) error {
	cfg, err := opts.engineConfig(stdinIfPiped())
	if err != nil {
		return err
	}

	engine, err := core.NewEngine(cfg)
	if err != nil {
		return err
	}

	if opts.MetricsAddr != "" {
		metrics.EnableMetrics()
		if err := metrics.StartMetricsServer(opts.MetricsAddr); err != nil {
			log.Printf("Failed to start metrics server: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.ShutdownMetricsServer(shutdownCtx); err != nil {
				log.Printf("Error shutting down metrics server: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)
	go func() {
		select {
		case <-signalChan:
			log.Println("Interrupt received, initiating graceful shutdown...")
			cancel()
		case <-ctx.Done():
		}
	}()

	statsCtx, stopStats := context.WithCancel(ctx)
	var statsWg sync.WaitGroup
	if opts.Stats {
		statsWg.Add(1)
		go func() {
			defer statsWg.Done()
			displayStats(statsCtx, engine)
		}()
	}

	runErr := engine.Run(ctx)

	stopStats()
	statsWg.Wait()
	if opts.Stats {
		displayFinalStats(engine)
	}

	if runErr != nil && core.KindOf(runErr) == core.KindShutdown {
		// Partial output was flushed; report it and exit cleanly.
		fmt.Fprintln(os.Stderr, core.Diagnostic(runErr))
		return nil
	}
	return runErr
}

// stdinIfPiped returns stdin unless it is an interactive terminal.
func stdinIfPiped() io.Reader {
	fi, err := os.Stdin.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	return os.Stdin
}
