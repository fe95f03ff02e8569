package handler

import (
	"context"
	"strings"

	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/generator"
	"resume-builder-go/internal/logger"
)

// SuggestHandler 独立内容建议处理器。
// 与会话流程不同，这里的生成失败直接上抛，由调用方决定降级策略。
type SuggestHandler struct {
	cfg *config.Config
	gen *generator.ContentGenerator
}

// NewSuggestHandler 创建一个新的内容建议处理器
func NewSuggestHandler(cfg *config.Config, gen *generator.ContentGenerator) *SuggestHandler {
	return &SuggestHandler{
		cfg: cfg,
		gen: gen,
	}
}

// SuggestBulletRequest 要点建议请求
type SuggestBulletRequest struct {
	JobTitle    string `json:"job_title"`
	Description string `json:"description"`
	Style       string `json:"style,omitempty"`
}

// SuggestBulletResponse 要点建议响应
type SuggestBulletResponse struct {
	Bullet string `json:"bullet"`
	Style  string `json:"style"`
}

// SuggestSummaryRequest 摘要建议请求
type SuggestSummaryRequest struct {
	Name       string                      `json:"name"`
	Skills     []string                    `json:"skills,omitempty"`
	Experience []generator.ExperienceBrief `json:"experience,omitempty"`
	Education  []generator.EducationBrief  `json:"education,omitempty"`
	Style      string                      `json:"style,omitempty"`
}

// SuggestSummaryResponse 摘要建议响应
type SuggestSummaryResponse struct {
	Summary string `json:"summary"`
	Style   string `json:"style"`
}

// SuggestBullet 为一段工作描述生成一条成就要点
func (h *SuggestHandler) SuggestBullet(ctx context.Context, req *SuggestBulletRequest) (*SuggestBulletResponse, error) {
	if req == nil || strings.TrimSpace(req.JobTitle) == "" {
		return nil, builder.NewValidationError("job_title", "职位名称不能为空")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, builder.NewValidationError("description", "工作描述不能为空")
	}

	style := builder.ParseStyle(req.Style)
	bullet, err := h.gen.GenerateBullet(ctx, req.JobTitle, req.Description, style)
	if err != nil {
		logger.Warn().Err(err).Str("job_title", req.JobTitle).Msg("要点建议生成失败")
		return nil, err
	}

	return &SuggestBulletResponse{
		Bullet: bullet,
		Style:  string(style),
	}, nil
}

// SuggestSummary 根据简历概要信息生成一段职业摘要
func (h *SuggestHandler) SuggestSummary(ctx context.Context, req *SuggestSummaryRequest) (*SuggestSummaryResponse, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, builder.NewValidationError("name", "姓名不能为空")
	}

	style := builder.ParseStyle(req.Style)
	input := generator.SummaryInput{
		Name:        req.Name,
		Skills:      req.Skills,
		Experiences: req.Experience,
		Education:   req.Education,
		Style:       style,
	}

	summary, err := h.gen.GenerateSummary(ctx, input)
	if err != nil {
		logger.Warn().Err(err).Str("name", req.Name).Msg("摘要建议生成失败")
		return nil, err
	}

	return &SuggestSummaryResponse{
		Summary: summary,
		Style:   string(style),
	}, nil
}
