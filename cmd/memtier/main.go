// File: cmd/memtier/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// memtier brings up the memory layer from a config file, runs a copy
// self-test across every tier pair, prints pool usage and optionally keeps
// serving prometheus metrics until interrupted.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/control"
	"github.com/momentics/hioload-mem/device"
	"github.com/momentics/hioload-mem/facade"
	"github.com/momentics/hioload-mem/pool"
)

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", "", "config file (YAML or JSON); defaults to $"+control.ConfigEnv)
	simulate := flag.Int("simulate", 0, "use a simulated runtime with this many devices")
	size := flag.String("size", "1MiB", "bytes per self-test copy")
	seed := flag.Uint64("seed", 1, "self-test pattern seed")
	metricsAddr := flag.String("metrics", "", "serve /metrics on this address after the self-test (overrides metricsAddress)")
	dump := flag.Bool("dump", false, "print the effective config and debug probes")
	flag.Parse()
	defer klog.Flush()

	if err := run(*configPath, *simulate, *size, *seed, *metricsAddr, *dump); err != nil {
		klog.Errorf("[memtier] %v", err)
		klog.Flush()
		os.Exit(1)
	}
}

func run(configPath string, simulate int, sizeText string, seed uint64, metricsAddr string, dump bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.MetricsAddress = metricsAddr
	}
	size, err := humanize.ParseBytes(sizeText)
	if err != nil || size == 0 {
		return errors.Errorf("invalid -size %q", sizeText)
	}
	if simulate > 0 {
		device.SetDefault(device.NewSimRuntime(device.DefaultSimConfig(simulate)))
	}

	m, err := facade.New(cfg)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results, err := runSelfTest(ctx, m, int(size), seed)
	if err != nil {
		return err
	}
	failed := printResults(os.Stdout, results)
	printStats(os.Stdout, m.Stats())
	if dump {
		data, err := control.Marshal(m.Config())
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", data)
		for k, v := range m.Debug().DumpState() {
			fmt.Printf("%s: %v\n", k, v)
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d copies failed", failed, len(results))
	}

	if addr := m.Config().MetricsAddress; addr != "" {
		return serveMetrics(ctx, addr, m.Collector())
	}
	return nil
}

func loadConfig(path string) (*control.Config, error) {
	if path != "" {
		return control.Load(path)
	}
	return control.LoadFromEnv()
}

func printResults(w io.Writer, results []pairResult) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SRC\tDST\tSERVED\tSIZE\tDEVICE\tRESULT")
	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s->%s\t%s\t%t\t%s\n", r.Src, r.Dst, r.ActualSrc, r.ActualDst,
			humanize.IBytes(uint64(r.Bytes)), r.DeviceUsed, status)
	}
	tw.Flush()
	return failed
}

func printStats(w io.Writer, stats []pool.PoolStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTIER\tPOOL\tCAPACITY\tUSED\tLIVE\tFALLBACKS")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", s.Tier, s.Pool,
			humanize.IBytes(s.CapacityBytes), humanize.IBytes(s.UsedBytes), s.LiveAllocations, s.Fallbacks)
	}
	tw.Flush()
}

func serveMetrics(ctx context.Context, addr string, c prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	klog.Infof("[memtier] serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
