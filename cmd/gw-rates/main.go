package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gw-lending/internal/config"
	"gw-lending/internal/grpc"
	"gw-lending/internal/logger"
	"gw-lending/internal/rates"
	"gw-lending/internal/storages"
	"gw-lending/internal/storages/postgres"

	"github.com/sirupsen/logrus"
	grpcServer "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	configPath := flag.String("c", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateRates(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger.Level, "gw-rates")
	log.Info("Starting gw-rates service...")

	storage, err := postgres.New(&postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer storage.Close()

	// Таблица в базе должна собираться так же, как ее соберет gw-lending
	if err := checkTable(storage, cfg.Rates.DefaultID, log); err != nil {
		log.Fatalf("Currency table is not usable: %v", err)
	}

	srv := grpcServer.NewServer(
		grpcServer.UnaryInterceptor(grpc.LoggingInterceptor(log)),
	)
	grpc.RegisterRatesServiceServer(srv, grpc.NewRatesServer(storage, cfg.Rates.DefaultID, log))

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	healthSrv.SetServingStatus(grpc.RatesServiceName, healthpb.HealthCheckResponse_SERVING)

	listener, err := net.Listen("tcp", ":"+cfg.Rates.GRPCPort)
	if err != nil {
		log.Fatalf("Failed to create listener: %v", err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("gRPC server is listening on port %s", cfg.Rates.GRPCPort)
		if err := srv.Serve(listener); err != nil {
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	<-done
	log.Info("Shutting down server...")

	healthSrv.Shutdown()
	srv.GracefulStop()
	log.Info("Server stopped gracefully")
}

func checkTable(storage storages.CurrencyStorage, defaultID int, log *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := storage.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	currencies, err := storage.ListCurrencies(ctx)
	if err != nil {
		return err
	}
	table, err := rates.NewTable(currencies, defaultID)
	if err != nil {
		return err
	}

	def := table.Default()
	log.Infof("Serving %d currencies, default %s (%s per unit)", len(table.All()), def.Code, def.Rate.String())
	return nil
}
