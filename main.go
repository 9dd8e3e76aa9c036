package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/projectdiscovery/gologger"
	"github.com/schollz/progressbar/v3"

	"slipscan/common"
	"slipscan/core/engine"
)

func main() {
	common.SlipscanInit()

	var bar *progressbar.ProgressBar
	eng := engine.New(engine.Config{
		SubnetFile:       common.Infos.SubnetFile,
		Domain:           common.Infos.Domain,
		RecordType:       common.Infos.RecordType,
		Chunk:            common.DefaultChunkSize,
		Threads:          common.Infos.Threads,
		RandomSub:        common.Infos.RandomSub,
		Slipstream:       common.Infos.Slipstream,
		ProxyThreads:     common.Infos.ProxyThreads,
		PortPoolSize:     common.Infos.PortPoolSize,
		BasePort:         common.Infos.BasePort,
		FallbackResolver: common.Infos.FallbackResolver,
		TestURL:          common.Infos.TestURL,
		ClientDir:        common.Infos.ClientDir,
		OutputDir:        common.Infos.OutputDir,
		SaveJSON:         common.Infos.SaveJSON,
	}, engine.Callbacks{
		OnFound: func(addr string, latency time.Duration) {
			fmt.Printf("%s %s (%dms)\n", aurora.Green("[+]"), addr, latency.Milliseconds())
		},
		OnProxy: func(addr string, passed bool) {
			if passed {
				fmt.Printf("%s %s proxy test passed\n", aurora.Green("[✓]"), addr)
			} else {
				fmt.Printf("%s %s proxy test failed\n", aurora.Red("[✗]"), addr)
			}
		},
		OnDownload: func(downloaded, total int64, status string) {
			if bar == nil && total > 0 {
				bar = progressbar.DefaultBytes(total, "downloading client")
			}
			if bar != nil {
				_ = bar.Set64(downloaded)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var interrupted atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		interrupted.Store(true)
		gologger.Info().Msgf("interrupted, stopping scan")
		eng.Cancel()
		cancel()
	}()

	if err := eng.Start(ctx); err != nil {
		if interrupted.Load() {
			os.Exit(130)
		}
		gologger.Error().Msgf("scan setup failed: %v", err)
		os.Exit(1)
	}

	scanBar := progressbar.NewOptions64(eng.Snapshot().EstimatedTotal,
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionSetWriter(os.Stderr),
	)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-eng.Done():
			break loop
		case <-ticker.C:
			snap := eng.Snapshot()
			_ = scanBar.Set64(snap.Scanned)
		}
	}
	eng.Wait()

	snap := eng.Snapshot()
	fmt.Println()
	gologger.Info().Msgf("scanned %d addresses in %.1fs (%.0f/s)", snap.Scanned, snap.Elapsed.Seconds(), snap.Speed)
	gologger.Info().Msgf("live resolvers: %d", snap.Found)
	if common.Infos.Slipstream {
		gologger.Info().Msgf("validation passed: %d, failed: %d", snap.Passed, snap.FailedProxy)
	}
	for _, r := range snap.Records {
		fmt.Printf("  %-15s %4dms  %s\n", r.Address, r.Latency.Milliseconds(), r.Proxy)
	}

	if interrupted.Load() {
		os.Exit(130)
	}
}
