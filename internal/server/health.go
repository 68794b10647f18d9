package server

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the service name reported on the gRPC health endpoint.
const HealthServiceName = "beaver.chat.v1.ChatRoom"

// HealthServer exposes the standard grpc.health.v1.Health service on a side
// port so orchestrators can probe the chat listener.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// NewHealthServer returns a health server that reports NOT_SERVING until
// the chat accept loop starts.
func NewHealthServer() *HealthServer {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	h := &HealthServer{grpcServer: gs, health: hs}
	h.SetServing(false)
	return h
}

// Serve blocks serving gRPC on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	log.Info("gRPC health server listening", "addr", lis.Addr().String())
	return h.grpcServer.Serve(lis)
}

// SetServing flips both the overall ("") and the chat service status.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthServiceName, status)
}

// Stop marks every service NOT_SERVING and stops the gRPC server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpcServer.GracefulStop()
}
