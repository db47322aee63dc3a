package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestHealthFollowsCheck(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv, hs := NewServer(logger)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	failing := make(chan struct{})
	go WatchHealth(ctx, hs, 20*time.Millisecond, func(context.Context) error {
		select {
		case <-failing:
			return errors.New("db down")
		default:
			return nil
		}
	})

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			var header metadata.MD
			resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{}, grpc.Header(&header))
			if err == nil && resp.GetStatus() == want {
				if len(header.Get(RequestIDMetadataKey)) == 0 {
					t.Fatal("expected request id header")
				}
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("health never reached %s", want)
	}

	waitFor(healthpb.HealthCheckResponse_SERVING)
	close(failing)
	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
}
