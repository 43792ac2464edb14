package api

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// KitchenServiceName is the service name reported by the health server
const KitchenServiceName = "kitchenops.Kitchen"

// NewGRPCServer builds the gRPC server that carries the readiness check.
// The returned health server starts NOT_SERVING; call MarkServing once dependencies are up.
func NewGRPCServer(log *logrus.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(log)))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(KitchenServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	return server, healthServer
}

// MarkServing flips both the overall and the kitchen service status to SERVING
func MarkServing(healthServer *health.Server) {
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(KitchenServiceName, healthpb.HealthCheckResponse_SERVING)
}

func loggingInterceptor(log *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := log.WithFields(logrus.Fields{
			"method":  info.FullMethod,
			"latency": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("⚠️ gRPC call failed")
		} else {
			entry.Debug("📡 gRPC call served")
		}
		return resp, err
	}
}
