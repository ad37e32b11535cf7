package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls both services over an existing connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) AnalyzeTone(ctx context.Context, req *AnalyzeToneRequest) (*AnalyzeToneResponse, error) {
	return invoke[AnalyzeToneResponse](ctx, c.conn, toneServiceName, "AnalyzeTone", req)
}

func (c *Client) GetSimilarTones(ctx context.Context, req *SimilarTonesRequest) (*SimilarTonesResponse, error) {
	return invoke[SimilarTonesResponse](ctx, c.conn, toneServiceName, "GetSimilarTones", req)
}

func (c *Client) GetUserToneProfile(ctx context.Context, req *ToneProfileRequest) (*ToneProfileResponse, error) {
	return invoke[ToneProfileResponse](ctx, c.conn, toneServiceName, "GetUserToneProfile", req)
}

func (c *Client) ProcessMessage(ctx context.Context, req *ProcessMessageRequest) (*ProcessMessageResponse, error) {
	return invoke[ProcessMessageResponse](ctx, c.conn, messageServiceName, "ProcessMessage", req)
}

func (c *Client) GetContext(ctx context.Context, req *GetContextRequest) (*GetContextResponse, error) {
	return invoke[GetContextResponse](ctx, c.conn, messageServiceName, "GetContext", req)
}

func (c *Client) HealthCheck(ctx context.Context) (*HealthCheckResponse, error) {
	return invoke[HealthCheckResponse](ctx, c.conn, messageServiceName, "HealthCheck", &HealthCheckRequest{})
}

func invoke[Resp any](ctx context.Context, conn grpc.ClientConnInterface, service, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := conn.Invoke(ctx, "/"+service+"/"+method, req, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}
