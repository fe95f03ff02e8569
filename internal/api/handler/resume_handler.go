package handler

import (
	"context"

	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/logger"
	"resume-builder-go/internal/storage"
)

// ResumeHandler 简历管理处理器，负责已完成简历的查询与删除
type ResumeHandler struct {
	cfg     *config.Config
	storage *storage.Storage
}

// NewResumeHandler 创建一个新的简历管理处理器
func NewResumeHandler(cfg *config.Config, storage *storage.Storage) *ResumeHandler {
	return &ResumeHandler{
		cfg:     cfg,
		storage: storage,
	}
}

// ResumeSummary 简历列表条目，仅含概要字段
type ResumeSummary struct {
	ResumeID   string `json:"resume_id"`
	ResumeName string `json:"resume_name"`
	IsPrimary  bool   `json:"is_primary"`
}

// ResumeDetail 完整简历响应
type ResumeDetail struct {
	ResumeID   string                    `json:"resume_id"`
	ResumeName string                    `json:"resume_name"`
	Contact    builder.Contact           `json:"contact"`
	Summary    string                    `json:"summary"`
	Experience []builder.ExperienceEntry `json:"experience"`
	Education  []builder.EducationEntry  `json:"education"`
	Skills     []string                  `json:"skills"`
	IsPrimary  bool                      `json:"is_primary"`
}

// ListResumes 列出某用户的全部简历概要
func (h *ResumeHandler) ListResumes(ctx context.Context, ownerID string) ([]ResumeSummary, error) {
	resumes, err := h.storage.MySQL.ListResumes(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ResumeSummary, 0, len(resumes))
	for _, r := range resumes {
		summaries = append(summaries, ResumeSummary{
			ResumeID:   r.ID,
			ResumeName: r.Name,
			IsPrimary:  r.IsPrimary,
		})
	}
	return summaries, nil
}

// GetResume 获取完整简历，校验归属
func (h *ResumeHandler) GetResume(ctx context.Context, ownerID, resumeID string) (*ResumeDetail, error) {
	resume, err := h.storage.MySQL.GetResume(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if resume.OwnerID != ownerID {
		return nil, builder.ErrUnauthorized
	}

	return &ResumeDetail{
		ResumeID:   resume.ID,
		ResumeName: resume.Name,
		Contact:    resume.Contact,
		Summary:    resume.Summary,
		Experience: resume.Experience,
		Education:  resume.Education,
		Skills:     resume.Skills,
		IsPrimary:  resume.IsPrimary,
	}, nil
}

// DeleteResume 删除简历，删除范围限定在owner自己的记录内
func (h *ResumeHandler) DeleteResume(ctx context.Context, ownerID, resumeID string) error {
	if err := h.storage.MySQL.DeleteResume(ctx, resumeID, ownerID); err != nil {
		return err
	}

	logger.Info().
		Str("resume_id", resumeID).
		Str("owner_id", ownerID).
		Msg("简历已删除")
	return nil
}
