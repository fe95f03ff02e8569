package router

import (
	"context"
	"errors"

	"resume-builder-go/internal/api/handler"
	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/logger"
	"resume-builder-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// ownerIDContextKey 认证中间件写入的用户标识键
const ownerIDContextKey = "owner_id"

// RegisterRoutes 注册 API 路由
func RegisterRoutes(
	h *server.Hertz,
	cfg *config.Config,
	storageManager *storage.Storage,
	builderHandler *handler.BuilderHandler,
	resumeHandler *handler.ResumeHandler,
	suggestHandler *handler.SuggestHandler,
) {
	api := h.Group("/api/v1")

	// 健康检查不需要认证
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		components := utils.H{}
		status := consts.StatusOK

		if err := storageManager.Redis.Ping(c); err != nil {
			components["redis"] = "down"
			status = consts.StatusServiceUnavailable
		} else {
			components["redis"] = "up"
		}

		if sqlDB, err := storageManager.MySQL.DB().DB(); err != nil || sqlDB.PingContext(c) != nil {
			components["mysql"] = "down"
			status = consts.StatusServiceUnavailable
		} else {
			components["mysql"] = "up"
		}

		overall := "ok"
		if status != consts.StatusOK {
			overall = "degraded"
		}
		ctx.JSON(status, utils.H{"status": overall, "components": components})
	})

	authed := api.Group("/", apiKeyAuth(cfg))

	builderGroup := authed.Group("/builder")
	builderGroup.POST("/sessions", func(c context.Context, ctx *app.RequestContext) {
		var req handler.StartSessionRequest
		// seed为可选，空请求体也合法
		_ = ctx.BindJSON(&req)

		resp, err := builderHandler.StartSession(c, ownerID(ctx), &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusCreated, resp)
	})

	builderGroup.POST("/sessions/:session_id/messages", func(c context.Context, ctx *app.RequestContext) {
		var req handler.PostMessageRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
			return
		}

		resp, err := builderHandler.PostMessage(c, ownerID(ctx), ctx.Param("session_id"), &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	builderGroup.POST("/sessions/:session_id/complete", func(c context.Context, ctx *app.RequestContext) {
		resp, err := builderHandler.CompleteSession(c, ownerID(ctx), ctx.Param("session_id"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	authed.GET("/resumes", func(c context.Context, ctx *app.RequestContext) {
		resp, err := resumeHandler.ListResumes(c, ownerID(ctx))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"resumes": resp})
	})

	authed.GET("/resumes/:resume_id", func(c context.Context, ctx *app.RequestContext) {
		resp, err := resumeHandler.GetResume(c, ownerID(ctx), ctx.Param("resume_id"))
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	authed.DELETE("/resumes/:resume_id", func(c context.Context, ctx *app.RequestContext) {
		if err := resumeHandler.DeleteResume(c, ownerID(ctx), ctx.Param("resume_id")); err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "DELETED"})
	})

	suggestGroup := authed.Group("/suggest")
	suggestGroup.POST("/bullet", func(c context.Context, ctx *app.RequestContext) {
		var req handler.SuggestBulletRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
			return
		}

		resp, err := suggestHandler.SuggestBullet(c, &req)
		if err != nil {
			writeSuggestError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	suggestGroup.POST("/summary", func(c context.Context, ctx *app.RequestContext) {
		var req handler.SuggestSummaryRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
			return
		}

		resp, err := suggestHandler.SuggestSummary(c, &req)
		if err != nil {
			writeSuggestError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})
}

// apiKeyAuth 基于静态API Key的认证中间件。
// Key通过Authorization: Bearer {key}传递，认证通过后将对应的用户标识写入请求上下文。
func apiKeyAuth(cfg *config.Config) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			userID, ok := cfg.Server.APIKeys[key]
			if !ok {
				return false, nil
			}
			ctx.Set(ownerIDContextKey, userID)
			return true, nil
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			logger.Debug().Err(err).Str("path", string(ctx.Path())).Msg("API Key认证失败")
			ctx.JSON(consts.StatusUnauthorized, utils.H{"error": "无效或缺失的API Key"})
			ctx.Abort()
		}),
	)
}

// ownerID 读取认证中间件写入的用户标识
func ownerID(ctx *app.RequestContext) string {
	if v, exists := ctx.Get(ownerIDContextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// writeError 将领域错误映射为HTTP状态码
func writeError(ctx *app.RequestContext, err error) {
	var validationErr *builder.ValidationError
	var persistenceErr *builder.PersistenceError

	switch {
	case errors.Is(err, builder.ErrSessionNotFound), errors.Is(err, builder.ErrResumeNotFound):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, builder.ErrUnauthorized):
		ctx.JSON(consts.StatusForbidden, utils.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": validationErr.Message, "field": validationErr.Field})
	case errors.As(err, &persistenceErr):
		logger.Error().Err(err).Msg("持久化操作失败")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部存储错误"})
	default:
		logger.Error().Err(err).Msg("未分类的请求处理错误")
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "内部错误"})
	}
}

// writeSuggestError 建议接口的错误映射，生成失败视为上游服务不可用
func writeSuggestError(ctx *app.RequestContext, err error) {
	var validationErr *builder.ValidationError
	if errors.As(err, &validationErr) {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": validationErr.Message, "field": validationErr.Field})
		return
	}
	ctx.JSON(consts.StatusBadGateway, utils.H{"error": "内容生成服务暂不可用"})
}
