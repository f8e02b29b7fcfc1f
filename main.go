package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	alarmapp "farm-host/internal/alarms/application"
	alarmrepo "farm-host/internal/alarms/infrastructure/postgres"
	alarmhttp "farm-host/internal/alarms/interfaces/http"
	"farm-host/internal/alarms/notify"
	"farm-host/internal/observability/metrics"
	"farm-host/internal/stream"
	"farm-host/internal/telemetry/acceptance"
	"farm-host/internal/telemetry/application"
	eventrepo "farm-host/internal/telemetry/infrastructure/postgres"
	snapshotcache "farm-host/internal/telemetry/infrastructure/redis"
	telemetryhttp "farm-host/internal/telemetry/interfaces/http"
	telemetrymqtt "farm-host/internal/telemetry/interfaces/mqtt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()

	ctx := context.Background()

	eventRepo := eventrepo.NewEventRepository(db)
	if err := eventRepo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("events schema error: %v", err)
	}
	alertRepo := alarmrepo.NewAlertRepository(db)
	if err := alertRepo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("alerts schema error: %v", err)
	}

	thresholds, err := alarmapp.LoadThresholds()
	if err != nil {
		logger.Fatalf("alert thresholds error: %v", err)
	}
	engineOpts := []alarmapp.EngineOption{alarmapp.WithLogger(logger)}
	if cfg.AlertWebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.AlertWebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		notifier, err := notify.NewNotifier(channel, nil, notify.WithLogger(logger))
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		engineOpts = append(engineOpts, alarmapp.WithNotifier(notifier))
	}
	engine, err := alarmapp.NewEngine(alertRepo, thresholds, engineOpts...)
	if err != nil {
		logger.Fatalf("alert engine error: %v", err)
	}

	filter := acceptance.NewFilter()

	gatewayOpts := []application.GatewayOption{application.WithLogger(logger)}
	var cache *snapshotcache.SnapshotCache
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		cache, err = snapshotcache.NewSnapshotCache(pingCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			logger.Fatalf("snapshot cache error: %v", err)
		}
		defer cache.Close()
		gatewayOpts = append(gatewayOpts, application.WithSnapshotCache(cache))
	}

	broker := stream.NewBroker()
	gateway, err := application.NewGateway(eventRepo, filter, engine, broker, gatewayOpts...)
	if err != nil {
		logger.Fatalf("gateway error: %v", err)
	}
	// The broker greets new subscribers with the gateway's snapshot.
	broker.SetSnapshotSource(gateway)

	if err := gateway.Restore(ctx); err != nil {
		logger.Fatalf("restore error: %v", err)
	}
	if err := engine.RestoreCooldowns(ctx, alertRepo); err != nil {
		logger.Fatalf("restore cooldowns error: %v", err)
	}

	if cfg.MQTTBroker != "" {
		consumer, err := telemetrymqtt.NewConsumer(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, gateway, logger)
		if err != nil {
			logger.Fatalf("mqtt consumer error: %v", err)
		}
		if err := consumer.Start(); err != nil {
			logger.Fatalf("mqtt start error: %v", err)
		}
		defer consumer.Close()
	}

	ingestHandler, err := telemetryhttp.NewIngestHandler(gateway, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	alertsHandler, err := alarmhttp.NewAlertsHandler(alertRepo)
	if err != nil {
		logger.Fatalf("alerts handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ingest", ingestHandler)
	mux.Handle("/api/v1/latest", telemetryhttp.NewLatestHandler(gateway))
	mux.Handle("/api/v1/series", telemetryhttp.NewSeriesHandler(gateway))
	mux.Handle("/api/v1/alerts", alertsHandler)
	mux.Handle("/api/v1/stream", stream.NewSSEHandler(broker))
	mux.Handle("/ws", stream.NewWSHandler(broker, logger))
	mux.Handle("/api/v1/exports/events.csv", telemetryhttp.NewExportEventsCSVHandler(eventRepo))
	mux.Handle("/api/v1/exports/events.xlsx", telemetryhttp.NewExportEventsXLSXHandler(eventRepo))
	mux.Handle("/api/v1/exports/alerts.pdf", alarmhttp.NewExportAlertsPDFHandler(alertRepo))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	RedisAddr       string
	MQTTBroker      string
	MQTTTopic       string
	MQTTClientID    string
	AlertWebhookURL string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:  getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8000"),
		RedisAddr:    getenvDefault("REDIS_ADDR", ""),
		MQTTBroker:   getenvDefault("MQTT_BROKER", ""),
		MQTTTopic:    getenvDefault("MQTT_TOPIC", "farm/sensors"),
		MQTTClientID: getenvDefault("MQTT_CLIENT_ID", "farm-host"),

		AlertWebhookURL: getenvDefault("ALERT_WEBHOOK_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the logging middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack keeps WebSocket upgrades working through the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijack unsupported")
}
