package grpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"gw-lending/internal/rates"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type memoryCurrencies struct {
	currencies []rates.Currency
	err        error
}

func (m *memoryCurrencies) ListCurrencies(context.Context) ([]rates.Currency, error) {
	return m.currencies, m.err
}

func (m *memoryCurrencies) GetCurrency(_ context.Context, code string) (*rates.Currency, error) {
	for _, c := range m.currencies {
		if strings.EqualFold(c.Code, code) {
			c := c
			return &c, nil
		}
	}
	return nil, fmt.Errorf("currency %s: %w", code, rates.ErrNotFound)
}

func (m *memoryCurrencies) Ping(context.Context) error { return nil }
func (m *memoryCurrencies) Close() error               { return nil }

func startServer(t *testing.T, storage *memoryCurrencies) *RatesClient {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	listener := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger)))
	RegisterRatesServiceServer(srv, NewRatesServer(storage, rates.DefaultCurrencyID, logger))
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	client, err := NewRatesClient("passthrough:///bufnet", time.Second, logger,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestFetchTable(t *testing.T) {
	client := startServer(t, &memoryCurrencies{currencies: rates.DefaultCurrencies()})

	table, err := client.FetchTable(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "BOB", table.Default().Code)
	assert.Len(t, table.All(), 4)

	cop, err := table.LookupCode("COP")
	require.NoError(t, err)
	assert.True(t, cop.Rate.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, 4, cop.ID)
	assert.Equal(t, "Colombia", cop.Name)
}

func TestFetchTableKeepsFractionalRates(t *testing.T) {
	client := startServer(t, &memoryCurrencies{currencies: []rates.Currency{
		{ID: 1, Name: "Bolivia", Code: "BOB", Rate: decimal.RequireFromString("6.96123456789"), Symbol: "Bs"},
	}})

	table, err := client.FetchTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "6.96123456789", table.Default().Rate.String())
}

func TestGetCurrency(t *testing.T) {
	client := startServer(t, &memoryCurrencies{currencies: rates.DefaultCurrencies()})

	ars, err := client.GetCurrency(context.Background(), "ars")
	require.NoError(t, err)
	assert.Equal(t, "ARS", ars.Code)

	_, err = client.GetCurrency(context.Background(), "EUR")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetCurrency(context.Background(), " ")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListCurrenciesStorageError(t *testing.T) {
	client := startServer(t, &memoryCurrencies{err: fmt.Errorf("db down")})

	_, err := client.FetchTable(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
}
