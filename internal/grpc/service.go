// Package grpc сервис курсов gw-rates и его клиент. Сообщения собраны из
// well-known типов protobuf, отдельный .proto не нужен.
package grpc

import (
	"context"
	"fmt"

	"gw-lending/internal/rates"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// RatesServiceName полное имя сервиса, оно же имя в health-проверке
	RatesServiceName = "gwlending.rates.v1.RatesService"

	listCurrenciesMethod = "/" + RatesServiceName + "/ListCurrencies"
	getCurrencyMethod    = "/" + RatesServiceName + "/GetCurrency"
)

// RatesServiceServer серверная часть сервиса курсов
type RatesServiceServer interface {
	ListCurrencies(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	GetCurrency(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RegisterRatesServiceServer регистрирует реализацию на сервере
func RegisterRatesServiceServer(s grpc.ServiceRegistrar, srv RatesServiceServer) {
	s.RegisterService(&RatesServiceDesc, srv)
}

// RatesServiceDesc описание сервиса для grpc.Server
var RatesServiceDesc = grpc.ServiceDesc{
	ServiceName: RatesServiceName,
	HandlerType: (*RatesServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListCurrencies", Handler: listCurrenciesHandler},
		{MethodName: "GetCurrency", Handler: getCurrencyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gwlending/rates/v1/rates.proto",
}

func listCurrenciesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RatesServiceServer).ListCurrencies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listCurrenciesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RatesServiceServer).ListCurrencies(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getCurrencyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RatesServiceServer).GetCurrency(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getCurrencyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RatesServiceServer).GetCurrency(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Курс передается строкой, чтобы не терять точность
func currencyFields(c rates.Currency) map[string]interface{} {
	return map[string]interface{}{
		"id":     c.ID,
		"name":   c.Name,
		"code":   c.Code,
		"rate":   c.Rate.String(),
		"symbol": c.Symbol,
	}
}

func currencyToStruct(c rates.Currency) (*structpb.Struct, error) {
	return structpb.NewStruct(currencyFields(c))
}

func currencyFromStruct(s *structpb.Struct) (rates.Currency, error) {
	fields := s.GetFields()

	rate, err := decimal.NewFromString(fields["rate"].GetStringValue())
	if err != nil {
		return rates.Currency{}, fmt.Errorf("invalid rate for %s: %w", fields["code"].GetStringValue(), err)
	}

	return rates.Currency{
		ID:     int(fields["id"].GetNumberValue()),
		Name:   fields["name"].GetStringValue(),
		Code:   fields["code"].GetStringValue(),
		Rate:   rate,
		Symbol: fields["symbol"].GetStringValue(),
	}, nil
}
