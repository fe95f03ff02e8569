package handler

import (
	"context"

	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
)

// BuilderHandler 构建器会话处理器，负责协调会话的创建、推进与完成
type BuilderHandler struct {
	cfg        *config.Config
	controller *builder.Controller
}

// NewBuilderHandler 创建一个新的构建器会话处理器
func NewBuilderHandler(cfg *config.Config, controller *builder.Controller) *BuilderHandler {
	return &BuilderHandler{
		cfg:        cfg,
		controller: controller,
	}
}

// SessionResponse 会话创建响应
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Step      string `json:"step"`
	Message   string `json:"message"`
	InputHint string `json:"input_hint"`
	Progress  int    `json:"progress"`
}

// MessageResponse 会话消息响应，附带已收集数据快照供客户端实时预览
type MessageResponse struct {
	Step      string                `json:"step"`
	Message   string                `json:"message"`
	InputHint string                `json:"input_hint"`
	Options   []ChoiceOption        `json:"options,omitempty"`
	Progress  int                   `json:"progress"`
	Data      builder.CollectedData `json:"collected_data"`
}

// ChoiceOption 选择型输入的候选项
type ChoiceOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CompleteResponse 会话完成响应
type CompleteResponse struct {
	ResumeID   string `json:"resume_id"`
	ResumeName string `json:"resume_name"`
	Status     string `json:"status"`
}

// StartSessionRequest 会话创建请求，seed数据可选
type StartSessionRequest struct {
	Seed map[string]interface{} `json:"seed_data,omitempty"`
}

// PostMessageRequest 会话消息请求
type PostMessageRequest struct {
	Text string `json:"message"`
}

// StartSession 创建一个新的构建器会话
func (h *BuilderHandler) StartSession(ctx context.Context, ownerID string, req *StartSessionRequest) (*SessionResponse, error) {
	var seed builder.CollectedData
	if req != nil && len(req.Seed) > 0 {
		seed = builder.CollectedData(req.Seed)
	}

	result, err := h.controller.Start(ctx, ownerID, seed)
	if err != nil {
		return nil, err
	}

	return &SessionResponse{
		SessionID: result.SessionID,
		Step:      string(result.Step),
		Message:   result.Response,
		InputHint: result.InputHint,
		Progress:  result.Progress,
	}, nil
}

// PostMessage 向会话提交一条用户输入并推进状态机
func (h *BuilderHandler) PostMessage(ctx context.Context, ownerID, sessionID string, req *PostMessageRequest) (*MessageResponse, error) {
	if req == nil {
		return nil, builder.NewValidationError("message", "请求体不能为空")
	}

	result, err := h.controller.Message(ctx, sessionID, ownerID, req.Text)
	if err != nil {
		return nil, err
	}

	options := make([]ChoiceOption, 0, len(result.Options))
	for _, opt := range result.Options {
		options = append(options, ChoiceOption{Value: opt.Value, Label: opt.Label})
	}

	return &MessageResponse{
		Step:      string(result.Step),
		Message:   result.Response,
		InputHint: result.InputHint,
		Options:   options,
		Progress:  result.Progress,
		Data:      result.Snapshot,
	}, nil
}

// CompleteSession 完成会话，落库简历并清理会话
func (h *BuilderHandler) CompleteSession(ctx context.Context, ownerID, sessionID string) (*CompleteResponse, error) {
	result, err := h.controller.Complete(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	return &CompleteResponse{
		ResumeID:   result.ResumeID,
		ResumeName: result.ResumeName,
		Status:     "COMPLETED",
	}, nil
}
