// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"code.hybscloud.com/shmipc/config"
	"code.hybscloud.com/shmipc/mempool"
	"code.hybscloud.com/shmipc/roudi"
	"code.hybscloud.com/shmipc/shmlog"
)

var (
	configPath  string
	logLevel    string
	compatLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shmipc-router",
		Short: "Discovery router daemon for the shared-memory IPC middleware",
		Long: `The router daemon owns the PortManager that matches publishers to
subscribers and servers to clients, dispatching the discovery protocol
between them. It does not sit on the data path: once matched, ports
exchange chunks directly through shared mempools and lock-free queues.`,
		RunE: runRouter,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the router's YAML configuration (required)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	rootCmd.Flags().StringVar(&compatLevel, "compatibility", "", "override the configured compatibility level")
	_ = rootCmd.MarkFlagRequired("config")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRouter(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if compatLevel != "" {
		cfg.Compatibility = compatLevel
	}
	level, err := parseZerologLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	compat, err := roudi.ParseCompatibilityLevel(cfg.Compatibility)
	if err != nil {
		return err
	}

	log := shmlog.New("router", level, os.Stdout)
	log.Info(fmt.Sprintf("starting router, compatibility=%s, segments=%d", compat, len(cfg.Segments)))

	ctx := roudi.NewDaemonContext(log, func(err error) {
		log.Fatal(err, "router exiting on fatal contract violation")
		os.Exit(1)
	})
	pm := roudi.NewPortManager(ctx)
	metrics := roudi.NewMetrics()

	for _, seg := range cfg.Segments {
		configs := make([]mempool.Config, len(seg.MemPools))
		for i, p := range seg.MemPools {
			configs[i] = mempool.Config{ChunkSize: p.ChunkSizeBytes, NumChunks: p.NumChunks}
		}
		m := mempool.NewManager(configs)
		for _, p := range m.Pools() {
			metrics.ObserveMemPool(p.Index(), p)
			log.WithMempool(p.Index()).Debug(fmt.Sprintf("pool ready: chunk_size=%d capacity=%d", p.ChunkSize(), p.Capacity()))
		}
		log.Info(fmt.Sprintf("segment %q: %d mempools, owner=%s", seg.Name, len(m.Pools()), seg.ACL.Owner))
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		pm.RunOnce()
	}
	return nil
}

func parseZerologLevel(s string) (zerolog.Level, error) {
	switch s {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
