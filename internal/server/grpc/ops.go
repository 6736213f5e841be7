// Package grpcserver runs the operational gRPC endpoint: health checks and,
// in dev mode, server reflection.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service is the health service name reported for the account API.
const Service = "gophauth.Accounts"

// Check probes one dependency. A nil error means healthy.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// NewOps builds the ops gRPC server with health registered. Everything starts
// NOT_SERVING until Watch reports the first passing round.
func NewOps(log *zap.Logger, dev bool, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			LoggingUnary(log),
			RecoverUnary(log),
		),
		grpc.ChainStreamInterceptor(
			LoggingStream(log),
			RecoverStream(log),
		),
	)
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	if dev {
		reflection.Register(s)
	}
	return s, hs
}

// Watch runs checks every interval until ctx is done and mirrors the result
// into hs. On return every service is marked NOT_SERVING.
func Watch(ctx context.Context, log *zap.Logger, hs *health.Server, interval time.Duration, checks ...Check) {
	probe := func() {
		st := healthpb.HealthCheckResponse_SERVING
		for _, c := range checks {
			cctx, cancel := context.WithTimeout(ctx, interval)
			err := c.Probe(cctx)
			cancel()
			if err != nil {
				log.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
				st = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(Service, st)
	}

	probe()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			probe()
		}
	}
}
