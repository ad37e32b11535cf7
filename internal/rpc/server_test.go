package rpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/health"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

type flakyStore struct {
	*memory.Store
	err error
}

func (f *flakyStore) Ping(context.Context) error { return f.err }

func startServer(t *testing.T) (*Client, *grpc.ClientConn, *Server, *flakyStore) {
	t.Helper()
	s := &flakyStore{Store: memory.New()}
	client := embedding.NewClient(embedding.NewHashEmbedder(0), embedding.HashModel, embedding.HashDimension, 0)
	analyzer := tonesvc.NewAnalyzer(tonesvc.AnalysisContext{Store: s, Embedder: client}, tonesvc.Options{})
	chat := chatservice.NewService(s, analyzer, nil, nil)
	checker := health.NewChecker(s, client, map[string]string{"store": "memory"})

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(chat, checker, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), conn, srv, s
}

func TestToneServiceOverGRPC(t *testing.T) {
	c, _, _, _ := startServer(t)
	ctx := context.Background()

	resp, err := c.AnalyzeTone(ctx, &AnalyzeToneRequest{Text: "I miss you baby, kiss 😘"})
	require.NoError(t, err)
	assert.Equal(t, model.Romantic, resp.Analysis.PrimaryTone)
	assert.InDelta(t, 1.0, resp.Analysis.Scores.Sum(), 1e-9)

	_, err = c.GetSimilarTones(ctx, &SimilarTonesRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.GetSimilarTones(ctx, &SimilarTonesRequest{Text: "hi", Limit: 99})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	similar, err := c.GetSimilarTones(ctx, &SimilarTonesRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Empty(t, similar.Matches)

	_, err = c.GetUserToneProfile(ctx, &ToneProfileRequest{UserID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestMessageServiceOverGRPC(t *testing.T) {
	c, _, _, _ := startServer(t)
	ctx := context.Background()

	processed, err := c.ProcessMessage(ctx, &ProcessMessageRequest{SenderPhone: "+15550400", Text: "hello from work"})
	require.NoError(t, err)
	require.NotNil(t, processed.Reply)
	assert.NotEmpty(t, processed.Reply.Text)

	got, err := c.GetContext(ctx, &GetContextRequest{UserID: processed.Reply.UserID})
	require.NoError(t, err)
	assert.Len(t, got.Context.Messages, 2)
	assert.Equal(t, model.RelationshipBusiness, got.Context.User.Relationship)

	profile, err := c.GetUserToneProfile(ctx, &ToneProfileRequest{UserID: processed.Reply.UserID, Days: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, profile.Profile.Report.PeriodDays)

	_, err = c.ProcessMessage(ctx, &ProcessMessageRequest{Text: "no phone"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.GetContext(ctx, &GetContextRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	h, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, health.Healthy, h.Report.Status)
}

func TestGRPCHealthFollowsChecker(t *testing.T) {
	_, conn, srv, s := startServer(t)
	ctx := context.Background()
	hc := healthpb.NewHealthClient(conn)

	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: toneServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	s.err = errors.New("connection refused")
	srv.RefreshHealth(ctx)

	resp, err = hc.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))
	assert.Equal(t, codes.NotFound, status.Code(toStatus(chatservice.ErrUserNotFound)))
	assert.Equal(t, codes.InvalidArgument, status.Code(toStatus(tonesvc.ErrEmptyText)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(errors.New("boom"))))
	assert.Equal(t, codes.Aborted, status.Code(toStatus(status.Error(codes.Aborted, "x"))))
}
