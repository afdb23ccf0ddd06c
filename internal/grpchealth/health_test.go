package grpchealth

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*Server, grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return srv, dialer
}

func TestCheckReflectsServingStatus(t *testing.T) {
	srv, dialer := startServer(t)
	ctx := context.Background()

	if err := Check(ctx, "bufnet", zap.NewNop(), dialer); err == nil {
		t.Fatal("expected NOT_SERVING before readiness")
	}

	srv.SetServing(true)
	if err := Check(ctx, "bufnet", zap.NewNop(), dialer); err != nil {
		t.Fatalf("expected SERVING, got %v", err)
	}

	srv.SetServing(false)
	if err := Check(ctx, "bufnet", zap.NewNop(), dialer); err == nil {
		t.Fatal("expected NOT_SERVING after flip")
	}
}
