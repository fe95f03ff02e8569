package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-builder-go/internal/logger"
)

const (
	// OpenAI-compatible API endpoint for DashScope
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// AliyunQwenChatModel 实现了 model.ToolCallingChatModel 接口，
// 用于与阿里云通义千问模型交互（OpenAI兼容模式）。
type AliyunQwenChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Option 配置 AliyunQwenChatModel 的可选参数
type Option func(*AliyunQwenChatModel)

// WithTemperature 设置采样温度
func WithTemperature(t float64) Option {
	return func(aq *AliyunQwenChatModel) {
		aq.temperature = t
	}
}

// WithMaxTokens 设置生成内容的最大token数
func WithMaxTokens(n int) Option {
	return func(aq *AliyunQwenChatModel) {
		aq.maxTokens = n
	}
}

// NewAliyunQwenChatModel 创建一个新的 AliyunQwenChatModel 实例。
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string, opts ...Option) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	aq := &AliyunQwenChatModel{
		apiKey:     apiKey,
		modelName:  mn,
		apiURL:     url,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(aq)
	}

	logger.Info().
		Str("api_url", url).
		Str("model", mn).
		Msg("使用阿里云通义千问 LLM 客户端")

	return aq, nil
}

// --- OpenAI Compatible Request/Response Structures ---

type openAIChatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"` // Eino schema.Message is compatible enough for role/content
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openAIChatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
}

// Generate 实现 model.ChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt // 通用选项暂不处理，生成参数通过构造选项设置
	}

	reqPayload := openAIChatCompletionRequest{
		Model:       aq.modelName,
		Messages:    messages,
		Temperature: aq.temperature,
		MaxTokens:   aq.maxTokens,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug().
		Str("api_url", aq.apiURL).
		Str("model", aq.modelName).
		Int("message_count", len(messages)).
		Msg("发送生成请求")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.RoleType("assistant")
	}

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口 (placeholder)
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel (OpenAI 兼容) 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口。本服务不使用工具调用。
func (aq *AliyunQwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) > 0 {
		logger.Warn().Int("tool_count", len(tools)).Msg("本模型不支持工具调用，忽略绑定请求")
	}
	return nil
}

// WithTools 方法是为了满足 model.ToolCallingChatModel 接口。
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := aq.BindTools(tools); err != nil {
		return nil, err
	}
	return aq, nil
}

var _ model.ChatModel = (*AliyunQwenChatModel)(nil)
var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
