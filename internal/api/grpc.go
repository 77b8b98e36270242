package api

import (
	"context"
	"strings"

	"github.com/xela07ax/usagerisk/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HealthServer — стандартный grpc.health.v1, статус зависит от наличия модели.
type HealthServer struct {
	*health.Server
}

func NewHealthServer() *HealthServer {
	hs := &HealthServer{Server: health.NewServer()}
	hs.SetReady(false)
	return hs
}

func (h *HealthServer) SetReady(ready bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus("", st)
}

// NewGRPCServer поднимает gRPC сервер с health-сервисом. Остальные методы требуют токен.
func NewGRPCServer(hs *HealthServer, validator auth.TokenValidator, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryAuthInterceptor(validator, logger)))
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// UnaryAuthInterceptor проверяет токен в метаданных gRPC вызова
func UnaryAuthInterceptor(v auth.TokenValidator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// Health-check открыт для балансировщиков
		if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		// 1. Извлекаем метаданные из контекста
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}

		// 2. Ищем токен (в gRPC заголовки обычно в нижнем регистре)
		tokens := md.Get("authorization")
		if len(tokens) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing access token")
		}

		claims, err := v.VerifyToken(tokens[0])
		if err != nil || claims.UserID <= 0 {
			logger.Warn("grpc auth failure", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Errorf(codes.Unauthenticated, "invalid access token")
		}

		// 3. Обогащаем контекст
		return handler(auth.WithUserID(ctx, claims.UserID), req)
	}
}
