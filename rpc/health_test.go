package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

func dialHealth(t *testing.T, hs *HealthService) healthpb.HealthClient {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(hs)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestHealthService_Serving(t *testing.T) {
	hs := NewHealthService("marketplace-service", &fakePinger{}, zaptest.NewLogger(t))
	client := dialHealth(t, hs)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hs.Check(context.Background()))

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "marketplace-service"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestHealthService_StoreDown(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	hs := NewHealthService("marketplace-service", pinger, zaptest.NewLogger(t))
	client := dialHealth(t, hs)

	hs.Check(context.Background())
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	pinger.err = nil
	hs.Check(context.Background())
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestHealthService_RunStopsOnCancel(t *testing.T) {
	hs := NewHealthService("marketplace-service", &fakePinger{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hs.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done
}
