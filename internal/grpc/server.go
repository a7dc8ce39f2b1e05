package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"gw-lending/internal/rates"
	"gw-lending/internal/storages"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RatesServer отдает таблицу курсов из хранилища
type RatesServer struct {
	storage   storages.CurrencyStorage
	defaultID int
	logger    *logrus.Logger
}

// NewRatesServer создает новый экземпляр RatesServer
func NewRatesServer(storage storages.CurrencyStorage, defaultID int, logger *logrus.Logger) *RatesServer {
	return &RatesServer{
		storage:   storage,
		defaultID: defaultID,
		logger:    logger,
	}
}

// ListCurrencies возвращает все валюты и идентификатор валюты по умолчанию
func (s *RatesServer) ListCurrencies(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	currencies, err := s.storage.ListCurrencies(ctx)
	if err != nil {
		s.logger.Errorf("Failed to list currencies: %v", err)
		return nil, status.Errorf(codes.Internal, "failed to list currencies: %v", err)
	}

	list := make([]interface{}, 0, len(currencies))
	for _, c := range currencies {
		list = append(list, currencyFields(c))
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"default_id": s.defaultID,
		"currencies": list,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode currencies: %v", err)
	}

	s.logger.Infof("Successfully retrieved %d currencies", len(currencies))
	return resp, nil
}

// GetCurrency возвращает валюту по коду
func (s *RatesServer) GetCurrency(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	code := strings.TrimSpace(req.GetValue())
	if code == "" {
		s.logger.Warn("Invalid currency request: empty code")
		return nil, status.Error(codes.InvalidArgument, "currency code is required")
	}

	c, err := s.storage.GetCurrency(ctx, code)
	if err != nil {
		if errors.Is(err, rates.ErrNotFound) {
			return nil, status.Errorf(codes.NotFound, "currency %s not found", code)
		}
		s.logger.Errorf("Failed to get currency %s: %v", code, err)
		return nil, status.Errorf(codes.Internal, "failed to get currency: %v", err)
	}

	resp, err := currencyToStruct(*c)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode currency: %v", err)
	}
	return resp, nil
}

// LoggingInterceptor логирует каждый unary вызов
func LoggingInterceptor(log *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			log.Errorf("gRPC method: %s, duration: %v, error: %v", info.FullMethod, duration, err)
		} else {
			log.Infof("gRPC method: %s, duration: %v, status: success", info.FullMethod, duration)
		}
		return resp, err
	}
}
