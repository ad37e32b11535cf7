package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/health"
)

const messageServiceName = "mcp.v1.MessageService"

// MessageService implements mcp.v1.MessageService.
type MessageService struct {
	chat    *chatservice.Service
	checker *health.Checker
}

// NewMessageService wires the chat service. checker may be nil.
func NewMessageService(chat *chatservice.Service, checker *health.Checker) *MessageService {
	return &MessageService{chat: chat, checker: checker}
}

func (s *MessageService) ProcessMessage(ctx context.Context, req *ProcessMessageRequest) (*ProcessMessageResponse, error) {
	reply, err := s.chat.ProcessMessage(ctx, chatservice.Inbound{
		SenderPhone: req.SenderPhone,
		SenderName:  req.SenderName,
		Text:        req.Text,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ProcessMessageResponse{Reply: reply}, nil
}

func (s *MessageService) GetContext(ctx context.Context, req *GetContextRequest) (*GetContextResponse, error) {
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	result, err := s.chat.GetContext(ctx, req.UserID, req.ConversationID, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetContextResponse{Context: result}, nil
}

func (s *MessageService) HealthCheck(ctx context.Context, _ *HealthCheckRequest) (*HealthCheckResponse, error) {
	if s.checker == nil {
		return &HealthCheckResponse{Report: health.Report{Status: health.Healthy}}, nil
	}
	return &HealthCheckResponse{Report: s.checker.Check(ctx)}, nil
}

func messageServiceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: messageServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "ProcessMessage", Handler: unary(messageServiceName, "ProcessMessage", (*MessageService).ProcessMessage)},
			{MethodName: "GetContext", Handler: unary(messageServiceName, "GetContext", (*MessageService).GetContext)},
			{MethodName: "HealthCheck", Handler: unary(messageServiceName, "HealthCheck", (*MessageService).HealthCheck)},
		},
		Metadata: "mcp/v1/message.proto",
	}
}
