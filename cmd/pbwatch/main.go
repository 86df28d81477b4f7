// Command pbwatch subscribes to realtime topics of a PocketBase server and
// logs every change it receives.
//
//	pbwatch posts posts/RECORD_ID
//
// A bare collection name watches every record of that collection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thijsmie/pocketbase/pkg/config"
	"github.com/thijsmie/pocketbase/pkg/errortracking"
	"github.com/thijsmie/pocketbase/pkg/logger"
	"github.com/thijsmie/pocketbase/pkg/metrics"
	"github.com/thijsmie/pocketbase/pkg/pocketbase"
	"github.com/thijsmie/pocketbase/pkg/realtime"
	"github.com/thijsmie/pocketbase/pkg/server"
	"github.com/thijsmie/pocketbase/pkg/tracing"
)

func main() {
	// Load configuration
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}

	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	defer logger.Sync()

	topics := os.Args[1:]
	if len(topics) == 0 {
		logger.Error("Usage: pbwatch <collection>[/<record id>] ...")
		os.Exit(2)
	}

	if err := run(cfg, topics); err != nil {
		logger.Error("pbwatch failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, topics []string) error {
	if cfg.ErrorTracking.Enabled {
		provider, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
		if err != nil {
			return fmt.Errorf("failed to initialize error tracking: %w", err)
		}
		logger.InitErrorTracking(provider)
	}

	shutdownTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.SetProvider(metrics.NewPrometheusProvider(metrics.FromConfig(cfg.Metrics), prometheus.NewRegistry()))
	}

	client, err := pocketbase.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := login(ctx, client, cfg.Auth); err != nil {
		return err
	}

	ops := server.NewGracefulServer(server.Config{
		Addr: cfg.Metrics.Addr,
		Ready: func() error {
			if state := client.Realtime().State(); state != realtime.StateConnected {
				return fmt.Errorf("realtime %s", state)
			}
			return nil
		},
	})
	ops.RegisterShutdownCallback(client.Close)
	ops.RegisterShutdownCallback(shutdownTracer)
	ops.RegisterShutdownCallback(func(context.Context) error { return logger.CloseErrorTracking() })

	if cfg.Metrics.Addr != "" {
		if _, err := ops.Start(); err != nil {
			return err
		}
	}

	for _, topic := range topics {
		if err := watch(ctx, client, topic); err != nil {
			_ = ops.Shutdown(context.Background())
			return err
		}
	}
	logger.Info("Watching %d topic(s) on %s", len(topics), client.Transport().BaseURL())

	<-ctx.Done()
	logger.Info("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ops.Shutdown(shutdownCtx)
}

func login(ctx context.Context, client *pocketbase.Client, cfg config.AuthConfig) error {
	if cfg.Identity == "" {
		logger.Info("No credentials configured, watching as guest")
		return nil
	}

	var err error
	if cfg.Collection == pocketbase.SuperusersCollection {
		_, err = client.Admins().Auth().WithPassword(ctx, cfg.Identity, cfg.Password, nil)
	} else {
		collection := cfg.Collection
		if collection == "" {
			collection = pocketbase.DefaultAuthCollection
		}
		_, err = client.Collection(collection).Auth().WithPassword(ctx, cfg.Identity, cfg.Password, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to authenticate %s: %w", cfg.Identity, err)
	}

	logger.Info("Authenticated as %s (%s)", cfg.Identity, client.AuthStore().Kind())
	return nil
}

func watch(ctx context.Context, client *pocketbase.Client, topic string) error {
	handler := realtime.HandlerFunc(func(ctx context.Context, e *realtime.Event) error {
		logger.Info("%s %s %s/%s", e.Topic, e.Action, e.Record.CollectionName(), e.Record.ID())
		return nil
	})

	collection, recordID, _ := strings.Cut(topic, "/")
	if collection == "" {
		return errors.New("empty collection in topic " + topic)
	}

	records := client.Collection(collection)
	var err error
	if recordID == "" || recordID == "*" {
		_, err = records.SubscribeAll(ctx, handler, nil)
	} else {
		_, err = records.Subscribe(ctx, recordID, handler, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}
