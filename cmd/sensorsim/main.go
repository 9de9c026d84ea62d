// sensorsim publishes synthetic manhole telemetry onto the broker topic,
// for exercising the pipeline end to end without field hardware.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"drainwatch/internal/broker"
	"drainwatch/internal/config"
	"drainwatch/internal/logger"
	"drainwatch/internal/models"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	devices := flag.String("devices", "MH-001,MH-002,MH-003", "comma-separated device ids")
	interval := flag.Duration("interval", 2*time.Second, "publish interval per cycle")
	overflow := flag.Float64("overflow-chance", 0.05, "probability a reading exceeds the sewage threshold")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	producer, err := broker.NewProducer(cfg.Broker)
	if err != nil {
		log.Fatalf("create producer: %v", err)
	}
	defer producer.Close()

	ids := strings.Split(*devices, ",")
	lg := logger.WithComponent("sensorsim")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info().Msg("simulator stopped")
			return
		case <-ticker.C:
			for _, id := range ids {
				reading := synthesize(strings.TrimSpace(id), *overflow)
				if err := producer.Publish(ctx, reading); err != nil {
					lg.Warn().Err(err).Str("device_id", id).Msg("publish failed")
					continue
				}
				lg.Debug().Str("device_id", id).Float64("sewage_level", *reading.SewageLevel).Msg("published")
			}
		}
	}
}

func synthesize(deviceID string, overflowChance float64) *models.ReadingInput {
	sewage := 2 + rand.Float64()*4 // nominal range, below the 8m default
	if rand.Float64() < overflowChance {
		sewage = 8.5 + rand.Float64()*3
	}
	flow := 6 + rand.Float64()*10
	methane := rand.Float64() * 30
	temp := 15 + rand.Float64()*15
	humidity := 60 + rand.Float64()*35
	battery := 30 + rand.Float64()*70

	return &models.ReadingInput{
		DeviceID:     deviceID,
		SewageLevel:  &sewage,
		FlowRate:     &flow,
		MethaneLevel: &methane,
		Temperature:  &temp,
		Humidity:     &humidity,
		BatteryLevel: &battery,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}
