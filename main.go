package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"time"

	"github.com/rtm0/era5wind/internal/config"
	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/vm"
	"github.com/rtm0/era5wind/internal/windfield"
)

var (
	configFile      = flag.String("config", "config.ini", "path to the run configuration (INI, or YAML when ending in .yaml/.yml)")
	loadConcurrency = flag.Int("loadConcurrency", runtime.NumCPU(), "number of per-day files read in parallel")
	concurrency     = flag.Int("concurrency", runtime.NumCPU(), "number of concurrent requests to Victoria Metrics")
	recsPerInsert   = flag.Int("recsPerInsert", 500, "number of records sent to VM in one batch")
	vmInsertURL     = flag.String("vmInsertUrl", "", "Victoria Metrics insert API URL, e.g. http://localhost:8428/write. Empty disables the export")
	metricPrefix    = flag.String("metricPrefix", "era5", "prefix of the exported metric names")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Could not load configuration", "err", err)
		os.Exit(1)
	}

	a, err := windfield.New(ctx, cfg, era5.Reader{}, logger, *loadConcurrency)
	if err != nil {
		logger.Error("Could not assemble the wind field", "err", err)
		os.Exit(1)
	}
	if *vmInsertURL == "" {
		return
	}
	if err := export(ctx, logger, a); err != nil {
		logger.Error("Could not export the wind field", "err", err)
		os.Exit(1)
	}
}

// export sends the assembled wind field to Victoria Metrics one time frame
// at a time.
func export(ctx context.Context, logger *slog.Logger, a *windfield.Assembler) error {
	vmCli, err := vm.NewClient(logger, *vmInsertURL, *concurrency, *metricPrefix)
	if err != nil {
		return err
	}
	s, err := era5.NewScanner(a.Field)
	if err != nil {
		return err
	}
	logger.Info("ERA5 summary", s.Summary()...)

	recsCh := make(chan []era5.Record)
	progressCh := make(chan int)
	errCh := make(chan error, *concurrency)
	var wg sync.WaitGroup
	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for recs := range recsCh {
				n := len(recs)
				for i := 0; i < n; i += *recsPerInsert {
					begin := i
					limit := min(begin+*recsPerInsert, n)
					if err := vmCli.Insert(ctx, recs[begin:limit]); err != nil {
						select {
						case errCh <- err:
						default:
						}
						logger.Error("Could not insert records", "err", err)
					}
				}
				progressCh <- n
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var inserted, total float64
		total = float64(s.TotalRecCount())
		start := time.Now()
		for n := range progressCh {
			inserted += float64(n)
			percent := fmt.Sprintf("%.2f%%", 100*inserted/total)
			duration := time.Since(start).Round(1 * time.Second)
			logger.Info("progress", "inserted", percent, "in", duration)
		}
	}()
	for s.Scan() {
		select {
		case recsCh <- s.Records():
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(recsCh)
	wg.Wait()
	close(progressCh)
	<-done

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
