package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"

	"github.com/defistate/stream-decoder/config"
	"github.com/defistate/stream-decoder/decoder"
	"github.com/defistate/stream-decoder/decoderregistry"
	"github.com/defistate/stream-decoder/feed"
	"github.com/defistate/stream-decoder/storagesink"
	"github.com/defistate/stream-decoder/tokens"
)

const processStatsInterval = 15 * time.Second

// slogLogger adapts *slog.Logger to the narrow Logger interface every
// decoder-domain package expects.
type slogLogger struct{ *slog.Logger }

func main() {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	prometheusRegistry := prometheus.DefaultRegisterer

	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := decoderregistry.New()
	engine := storagesink.NewMemoryEngine()

	d := decoder.New(decoder.Config{
		SkipStateDecodeFailures: cfg.SkipStateDecodeFailures,
		MinTokenQuality:         cfg.MinTokenQuality,
	}, registry, engine, prometheusRegistry, slogLogger{rootLogger})

	// FeedMessages normally arrive from an upstream streaming client,
	// which is out of this process's scope; runDemoTick exercises the
	// wiring with a single synthetic message so the decoder's startup
	// path is exercised even with no real feed attached yet.
	if err := runDemoTick(ctx, d); err != nil {
		rootLogger.Warn("demo tick failed", "error", err)
	}

	go reportProcessStats(ctx, rootLogger)

	rootLogger.Info("decoderd running", "metrics_addr", cfg.MetricsAddr, "publish_addr", cfg.PublishAddr)
	<-ctx.Done()
	rootLogger.Info("shutting down")
}

func loadConfig() (*config.DecoderConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}

func runDemoTick(ctx context.Context, d *decoder.Decoder) error {
	weth := common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	d.SetTokens(map[common.Address]tokens.Token{
		weth: {Address: weth, Symbol: "WETH", Decimals: 18, Quality: 100, Chain: "ethereum"},
	})

	msg := feed.FeedMessage{StateMsgs: map[string]feed.ProtocolMessage{
		"bootstrap": {Header: feed.Header{Number: 0}},
	}}
	_, err := d.Decode(ctx, msg)
	return err
}

func reportProcessStats(ctx context.Context, logger *slog.Logger) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("process stats unavailable", "error", err)
		return
	}

	ticker := time.NewTicker(processStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem, err := proc.MemoryInfo()
			if err != nil {
				logger.Warn("failed to read process memory", "error", err)
				continue
			}
			cpuPercent, err := proc.CPUPercent()
			if err != nil {
				logger.Warn("failed to read process cpu", "error", err)
				continue
			}
			logger.Debug("process stats", "rss_bytes", mem.RSS, "cpu_percent", cpuPercent)
		}
	}
}
