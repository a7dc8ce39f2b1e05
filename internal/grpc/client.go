package grpc

import (
	"context"
	"fmt"
	"time"

	"gw-lending/internal/rates"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RatesClient клиент сервиса gw-rates
type RatesClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  *logrus.Logger
}

// NewRatesClient создает клиент. Соединение устанавливается лениво
// при первом вызове.
func NewRatesClient(address string, timeout time.Duration, logger *logrus.Logger, opts ...grpc.DialOption) (*RatesClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rates client: %w", err)
	}

	logger.Infof("Rates client created for %s", address)
	return &RatesClient{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// ListCurrencies все валюты и валюта по умолчанию
func (c *RatesClient) ListCurrencies(ctx context.Context) ([]rates.Currency, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Requesting currencies from rates service")

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listCurrenciesMethod, &emptypb.Empty{}, resp); err != nil {
		c.logger.Errorf("Failed to get currencies: %v", err)
		return nil, 0, fmt.Errorf("failed to get currencies: %w", err)
	}

	fields := resp.GetFields()
	values := fields["currencies"].GetListValue().GetValues()
	currencies := make([]rates.Currency, 0, len(values))
	for _, v := range values {
		cur, err := currencyFromStruct(v.GetStructValue())
		if err != nil {
			return nil, 0, err
		}
		currencies = append(currencies, cur)
	}

	c.logger.Debugf("Received %d currencies", len(currencies))
	return currencies, int(fields["default_id"].GetNumberValue()), nil
}

// GetCurrency валюта по коду
func (c *RatesClient) GetCurrency(ctx context.Context, code string) (rates.Currency, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, getCurrencyMethod, wrapperspb.String(code), resp); err != nil {
		return rates.Currency{}, fmt.Errorf("failed to get currency %s: %w", code, err)
	}
	return currencyFromStruct(resp)
}

// FetchTable строит неизменяемую таблицу курсов из ответа сервиса
func (c *RatesClient) FetchTable(ctx context.Context) (*rates.Table, error) {
	currencies, defaultID, err := c.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	table, err := rates.NewTable(currencies, defaultID)
	if err != nil {
		return nil, fmt.Errorf("invalid rate table from service: %w", err)
	}
	return table, nil
}

// Close закрывает соединение с gRPC сервером
func (c *RatesClient) Close() error {
	if c.conn != nil {
		c.logger.Info("Closing connection to rates service")
		return c.conn.Close()
	}
	return nil
}
