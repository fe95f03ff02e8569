// Package generator 封装简历内容生成：工作亮点(bullet)与个人总结(summary)。
// 所有生成都带超时与有限重试，失败由调用方决定回退策略。
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"resume-builder-go/internal/logger"
)

// Style 生成风格，来自用户在审阅环节的选择
type Style string

const (
	// StyleProfessional 默认的专业风格
	StyleProfessional Style = "professional"
	// StyleDetailed 更详细、展开的风格
	StyleDetailed Style = "detailed"
	// StyleConcise 更简短、紧凑的风格
	StyleConcise Style = "concise"
	// StyleFancy 更有感染力、令人印象深刻的风格
	StyleFancy Style = "fancy"
)

// styleInstructions 每种风格附加到提示词中的写作指示
var styleInstructions = map[Style]string{
	StyleProfessional: "Write in a polished, professional tone suitable for corporate recruiters.",
	StyleDetailed:     "Write a longer, more detailed version that elaborates on scope, tools and outcomes.",
	StyleConcise:      "Write a shorter, tighter version. One line, no filler words.",
	StyleFancy:        "Write an impressive, high-impact version with strong action verbs and quantified results where plausible.",
}

// instructionFor 返回风格对应的指示，未知风格回退到专业风格
func instructionFor(style Style) string {
	if ins, ok := styleInstructions[style]; ok {
		return ins
	}
	return styleInstructions[StyleProfessional]
}

// ExperienceBrief 用于总结生成的工作经历摘要
type ExperienceBrief struct {
	Title   string
	Company string
}

// EducationBrief 用于总结生成的教育经历摘要
type EducationBrief struct {
	School string
	Degree string
}

// SummaryInput 总结生成的上下文
type SummaryInput struct {
	Name        string
	Skills      []string
	Experiences []ExperienceBrief
	Education   []EducationBrief
	Style       Style
}

// ContentGenerator 基于LLM的内容生成器
type ContentGenerator struct {
	llmModel model.ToolCallingChatModel

	// 单次生成的超时
	requestTimeout time.Duration
	// 最大重试次数
	maxRetries int
	// 初始重试等待时间
	retryWait time.Duration
}

// Option 是内容生成器的配置选项
type Option func(*ContentGenerator)

// WithRequestTimeout 设置单次生成的超时时间
func WithRequestTimeout(d time.Duration) Option {
	return func(g *ContentGenerator) {
		g.requestTimeout = d
	}
}

// WithMaxRetries 设置最大重试次数
func WithMaxRetries(n int) Option {
	return func(g *ContentGenerator) {
		g.maxRetries = n
	}
}

// WithRetryWait 设置初始重试等待时间，之后每次翻倍
func WithRetryWait(d time.Duration) Option {
	return func(g *ContentGenerator) {
		g.retryWait = d
	}
}

// NewContentGenerator 创建内容生成器
func NewContentGenerator(llmModel model.ToolCallingChatModel, options ...Option) *ContentGenerator {
	g := &ContentGenerator{
		llmModel:       llmModel,
		requestTimeout: 30 * time.Second,
		maxRetries:     2,
		retryWait:      time.Second,
	}

	for _, opt := range options {
		opt(g)
	}

	return g
}

const bulletSystemPrompt = `You are an expert resume writer. You turn plain descriptions of what someone did at work into a single achievement-oriented resume bullet point.

Rules:
- Output exactly one bullet point, no leading dash or bullet marker.
- Start with a strong action verb in past tense.
- Keep it under 30 words.
- Never invent employers, dates or credentials that were not mentioned.
- Output the bullet text only, no explanations, no markdown.`

const summarySystemPrompt = `You are an expert resume writer. You write short professional summaries for the top of a resume.

Rules:
- Output a single paragraph of 2-3 sentences.
- Third person implied, no "I" statements.
- Ground every claim in the provided facts; never invent employers, titles or skills.
- Output the summary text only, no explanations, no markdown.`

// GenerateBullet 根据工作描述生成一条简历亮点
func (g *ContentGenerator) GenerateBullet(ctx context.Context, jobTitle string, description string, style Style) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("工作描述不能为空")
	}

	var sb strings.Builder
	if strings.TrimSpace(jobTitle) != "" {
		fmt.Fprintf(&sb, "Job title: %s\n", jobTitle)
	}
	fmt.Fprintf(&sb, "What they did: %s\n", description)
	fmt.Fprintf(&sb, "Style: %s", instructionFor(style))

	response, err := g.callLLM(ctx, bulletSystemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("生成简历亮点失败: %w", err)
	}

	bullet := CleanGeneratedText(response)
	if bullet == "" {
		return "", fmt.Errorf("生成简历亮点失败: 模型返回空内容")
	}
	return bullet, nil
}

// GenerateSummary 根据收集到的信息生成个人总结
func (g *ContentGenerator) GenerateSummary(ctx context.Context, input SummaryInput) (string, error) {
	var sb strings.Builder
	if input.Name != "" {
		fmt.Fprintf(&sb, "Name: %s\n", input.Name)
	}
	for _, exp := range input.Experiences {
		if exp.Title == "" && exp.Company == "" {
			continue
		}
		fmt.Fprintf(&sb, "Experience: %s at %s\n", exp.Title, exp.Company)
	}
	for _, edu := range input.Education {
		if edu.School == "" && edu.Degree == "" {
			continue
		}
		fmt.Fprintf(&sb, "Education: %s, %s\n", edu.Degree, edu.School)
	}
	if len(input.Skills) > 0 {
		fmt.Fprintf(&sb, "Skills: %s\n", strings.Join(input.Skills, ", "))
	}
	fmt.Fprintf(&sb, "Style: %s", instructionFor(input.Style))

	response, err := g.callLLM(ctx, summarySystemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("生成个人总结失败: %w", err)
	}

	summary := CleanGeneratedText(response)
	if summary == "" {
		return "", fmt.Errorf("生成个人总结失败: 模型返回空内容")
	}
	return summary, nil
}

// FallbackSummary 在生成失败时使用的确定性模板总结，最多引用前3项技能
func FallbackSummary(input SummaryInput) string {
	role := "professional"
	if len(input.Experiences) > 0 && input.Experiences[0].Title != "" {
		role = input.Experiences[0].Title
	}

	skills := input.Skills
	if len(skills) > 3 {
		skills = skills[:3]
	}

	if len(skills) > 0 {
		return fmt.Sprintf("Experienced %s with a strong background in %s. Proven track record of delivering results and adapting to new challenges.",
			strings.ToLower(role), strings.Join(skills, ", "))
	}
	return fmt.Sprintf("Experienced %s with a proven track record of delivering results and adapting to new challenges.",
		strings.ToLower(role))
}

// callLLM 调用LLM处理提示词
func (g *ContentGenerator) callLLM(ctx context.Context, systemContent string, userContent string) (string, error) {
	messages := []*einoschema.Message{
		{Role: "system", Content: systemContent},
		{Role: "user", Content: userContent},
	}

	retryDelay := g.retryWait

	var response *einoschema.Message
	var err error

	// 重试逻辑
	for retry := 0; retry <= g.maxRetries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				// 增加退避时间
				retryDelay *= 2
				logger.Debug().Int("retry", retry).Msg("重试LLM生成调用")
			}
		}

		// 创建带超时的上下文，继承上游的取消信号
		callCtx, cancel := context.WithTimeout(ctx, g.requestTimeout)
		response, err = g.llmModel.Generate(callCtx, messages)
		cancel()

		if err == nil {
			break
		}

		if !isRetryableError(err) || retry >= g.maxRetries {
			return "", fmt.Errorf("LLM Generate failed: %w", err)
		}
	}

	return response.Content, nil
}

// isRetryableError 判断错误是否应该重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}

// CleanGeneratedText 清理模型输出：去掉markdown代码围栏、引号和首尾空白
func CleanGeneratedText(text string) string {
	s := strings.TrimSpace(text)

	// 去掉 ``` 或 ```xxx 围栏
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 {
			// 围栏后可能跟语言标记，丢弃第一行剩余部分
			firstLine := s[:idx]
			if !strings.ContainsAny(firstLine, " .") {
				s = s[idx+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	// 去掉包裹整体的引号
	s = strings.Trim(s, "\"'")

	// 去掉行首的项目符号
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "- "), "• "))

	return strings.TrimSpace(s)
}
