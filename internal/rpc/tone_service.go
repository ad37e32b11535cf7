package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
)

const toneServiceName = "tone.v1.ToneService"

// ToneService implements tone.v1.ToneService.
type ToneService struct {
	chat *chatservice.Service
}

// NewToneService wraps the chat service and its analyzer.
func NewToneService(chat *chatservice.Service) *ToneService {
	return &ToneService{chat: chat}
}

// AnalyzeTone never fails for well-formed requests.
func (s *ToneService) AnalyzeTone(ctx context.Context, req *AnalyzeToneRequest) (*AnalyzeToneResponse, error) {
	analysis := s.chat.Analyzer().Analyze(ctx, tonesvc.Request{
		UserID:      req.UserID,
		Text:        req.Text,
		ContextHint: req.Context,
	})
	return &AnalyzeToneResponse{Analysis: analysis}, nil
}

func (s *ToneService) GetSimilarTones(ctx context.Context, req *SimilarTonesRequest) (*SimilarTonesResponse, error) {
	if req.Limit < 0 || req.Limit > 50 || req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		return nil, status.Error(codes.InvalidArgument, "limit must be within [0,50] and minSimilarity within [0,1]")
	}
	hits, err := s.chat.Analyzer().FindSimilar(ctx, tonesvc.SimilarQuery{
		Text:          req.Text,
		UserID:        req.UserID,
		Relationship:  req.Relationship,
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &SimilarTonesResponse{Matches: make([]model.Match, 0, len(hits))}
	for _, hit := range hits {
		resp.Matches = append(resp.Matches, hit.Match())
	}
	return resp, nil
}

func (s *ToneService) GetUserToneProfile(ctx context.Context, req *ToneProfileRequest) (*ToneProfileResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	profile, err := s.chat.GetToneProfile(ctx, req.UserID, req.Days)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ToneProfileResponse{Profile: profile}, nil
}

func toneServiceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: toneServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "AnalyzeTone", Handler: unary(toneServiceName, "AnalyzeTone", (*ToneService).AnalyzeTone)},
			{MethodName: "GetSimilarTones", Handler: unary(toneServiceName, "GetSimilarTones", (*ToneService).GetSimilarTones)},
			{MethodName: "GetUserToneProfile", Handler: unary(toneServiceName, "GetUserToneProfile", (*ToneService).GetUserToneProfile)},
		},
		Metadata: "tone/v1/tone.proto",
	}
}
