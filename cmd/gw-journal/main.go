package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gw-lending/internal/config"
	"gw-lending/internal/kafka"
	"gw-lending/internal/logger"
	"gw-lending/internal/metrics"
	"gw-lending/internal/storages/mongodb"
	"gw-lending/pkg"

	"github.com/sirupsen/logrus"
)

func main() {
	// Парсинг флагов командной строки
	configPath := flag.String("c", "", "Path to config file")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Валидация конфигурации
	if err := cfg.ValidateJournal(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log := logger.New(cfg.Logger.Level, "gw-journal")
	log.Info("Starting gw-journal service...")
	log.Infof("Configuration loaded from: %s", *configPath)

	storage, err := mongodb.New(&mongodb.Config{
		URI:         cfg.MongoDB.URI,
		Database:    cfg.MongoDB.Database,
		Collection:  cfg.MongoDB.Collection,
		Timeout:     cfg.MongoDB.Timeout,
		MaxPoolSize: cfg.MongoDB.MaxPoolSize,
		MinPoolSize: cfg.MongoDB.MinPoolSize,
	}, log)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		storage.Close(ctx)
	}()

	m := metrics.New()

	// Создание Kafka consumer
	consumer := kafka.NewConsumer(&kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		GroupID:       cfg.Kafka.GroupID,
		MinBytes:      cfg.Kafka.MinBytes,
		MaxBytes:      cfg.Kafka.MaxBytes,
		MaxWait:       cfg.Kafka.MaxWait,
		BatchSize:     cfg.Processing.BatchSize,
		Workers:       cfg.Processing.Workers,
		FlushInterval: cfg.Processing.FlushInterval,
		RetryAttempts: cfg.Processing.RetryAttempts,
		RetryDelay:    cfg.Processing.RetryDelay,
	}, storage, m, log)
	defer consumer.Close()

	// Метрики журнала на HTTP_PORT
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("Metrics available at http://localhost:%s/", cfg.Server.HTTPPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Start(ctx)
	}()

	// Периодическая статистика
	statsTicker := time.NewTicker(cfg.Processing.StatsInterval)
	defer statsTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				printStatistics(log, consumer, storage)
			}
		}
	}()

	log.Info("Service is running. Press Ctrl+C to stop...")

	select {
	case <-sigChan:
		log.Info("Received shutdown signal...")
	case err := <-consumerErr:
		if err != nil {
			log.Errorf("Consumer error: %v", err)
		}
	}

	log.Info("Shutting down service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout exceeded, forcing exit")
	case err := <-consumerErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Consumer shutdown error: %v", err)
		}
	}

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Metrics server shutdown: %v", err)
	}

	printFinalStatistics(log, consumer, storage)
	log.Info("Service stopped gracefully")
}

// printStatistics выводит текущую статистику
func printStatistics(log *logrus.Logger, consumer *kafka.Consumer, storage *mongodb.MongoStorage) {
	stats := consumer.GetStatistics()
	log.Infof("Consumer Statistics: Processed=%d, Failed=%d, Rate=%.2f msg/s, Uptime=%.0fs",
		stats.MessagesProcessed, stats.MessagesFailed, stats.ProcessingRate, stats.UptimeSeconds)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	journal, err := storage.GetStatistics(ctx)
	if err != nil {
		log.Warnf("Failed to get journal statistics: %v", err)
		return
	}

	log.Infof("Journal Statistics: Total=%d, Failed=%d, Large=%d, ByKind=%v",
		journal.TotalEvents, journal.TotalFailed, journal.TotalLarge, journal.ByKind)
}

// printFinalStatistics выводит финальную статистику перед завершением
func printFinalStatistics(log *logrus.Logger, consumer *kafka.Consumer, storage *mongodb.MongoStorage) {
	log.Info("=== Final Statistics ===")

	stats := consumer.GetStatistics()
	log.Infof("Total Messages Processed: %d", stats.MessagesProcessed)
	log.Infof("Total Messages Failed: %d", stats.MessagesFailed)
	log.Infof("Average Processing Rate: %.2f msg/s", stats.ProcessingRate)
	log.Infof("Total Uptime: %s", pkg.FormatDuration(time.Duration(stats.UptimeSeconds*float64(time.Second))))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	journal, err := storage.GetStatistics(ctx)
	if err != nil {
		log.Warnf("Failed to get final journal statistics: %v", err)
		return
	}

	log.Infof("Total Events in Journal: %d", journal.TotalEvents)
	log.Infof("Large Operations: %d", journal.TotalLarge)
	log.Info("========================")
}
