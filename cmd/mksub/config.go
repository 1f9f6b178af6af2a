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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/x-stp/mksub/internal/core"
	"github.com/x-stp/mksub/internal/wordlist"
	"github.com/ygrebnov/errorc"
)

// envPrefix namespaces environment overrides: --buffer-mb becomes MKSUB_BUFFER_MB.
const envPrefix = "MKSUB"

// options is the fully resolved command line: flags, then environment, then
// config file, then defaults.
type options struct {
	Domain     string
	DomainFile string
	Wordlist   string
	Regex      string
	CIRegex    bool
	Level      int
	Threads    int
	MaxThreads int

	Output        string
	Silent        bool
	Shards        int
	BufferMB      int
	Queue         int
	Compress      bool
	FlushInterval time.Duration

	Rate        float64
	PinWorkers  bool
	Stats       bool
	MetricsAddr string
	Verbose     bool
}

// loadOptions binds the command's flags to viper and resolves every value.
func loadOptions(cmd *cobra.Command, configFile string) (*options, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %w", core.ErrConfiguration, configFile, err)
		}
	}

	return &options{
		Domain:        v.GetString("domain"),
		DomainFile:    v.GetString("domain-file"),
		Wordlist:      v.GetString("wordlist"),
		Regex:         v.GetString("regex"),
		CIRegex:       v.GetBool("ci-regex"),
		Level:         v.GetInt("level"),
		Threads:       v.GetInt("threads"),
		MaxThreads:    v.GetInt("max-threads"),
		Output:        v.GetString("output"),
		Silent:        v.GetBool("silent"),
		Shards:        v.GetInt("shards"),
		BufferMB:      v.GetInt("buffer-mb"),
		Queue:         v.GetInt("queue"),
		Compress:      v.GetBool("compress"),
		FlushInterval: v.GetDuration("flush-interval"),
		Rate:          v.GetFloat64("rate"),
		PinWorkers:    v.GetBool("pin-workers"),
		Stats:         v.GetBool("stats"),
		MetricsAddr:   v.GetString("metrics-addr"),
		Verbose:       v.GetBool("verbose"),
	}, nil
}

// engineConfig reads the inputs and builds the engine configuration. The
// filter is compiled first so a bad pattern is reported before any file is
// read. stdin may be nil when it is a terminal.
func (o *options) engineConfig(stdin io.Reader) (*core.Config, error) {
	filter, err := wordlist.CompileFilter(o.Regex, o.CIRegex)
	if err != nil {
		return nil, err
	}

	words, err := wordlist.ReadWordFile(o.Wordlist, nil)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, errorc.With(core.ErrConfiguration, errorc.String("wordlist", "no valid words found in "+o.Wordlist))
	}
	if filter != nil && !anyMatch(words, filter) {
		return nil, errorc.With(core.ErrConfiguration, errorc.String("regex", "no words match "+o.Regex))
	}

	domains, err := wordlist.ReadDomains(o.Domain, o.DomainFile, stdin)
	if err != nil {
		return nil, err
	}

	// Without an output file, stdout is the only destination.
	silent := o.Silent
	if o.Output == "" {
		silent = false
	}

	cfg := core.DefaultConfig()
	cfg.Words = words
	cfg.Domains = domains
	cfg.MaxLevel = o.Level
	cfg.Filter = filter
	cfg.Workers = o.Threads
	cfg.MaxThreads = o.MaxThreads
	cfg.ShardCount = o.Shards
	cfg.BufferSize = o.BufferMB * 1024 * 1024
	cfg.QueueCapacity = o.Queue
	cfg.FlushInterval = o.FlushInterval
	cfg.OutputPath = o.Output
	cfg.Silent = silent
	cfg.Compress = o.Compress
	cfg.Rate = o.Rate
	cfg.PinWorkers = o.PinWorkers
	cfg.Verbose = o.Verbose
	return cfg, nil
}

func anyMatch(words []string, filter core.Filter) bool {
	for _, w := range words {
		if filter(w) {
			return true
		}
	}
	return false
}
