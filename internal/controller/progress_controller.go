package controller

import (
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

type completeLessonRequest struct {
	TimeSpent int `json:"timeSpent" binding:"gte=0"`
}

// @Summary 开始学习课时
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path string true "课时ID"
// @Success 200 {object} util.Response
// @Router /api/lessons/{id}/start [post]
func (c *ProgressController) StartLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	progress, err := c.ProgressService.StartLesson(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 完成课时
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "课时ID"
// @Param body body completeLessonRequest false "timeSpent 秒"
// @Success 200 {object} util.Response
// @Router /api/lessons/{id}/complete [post]
func (c *ProgressController) CompleteLesson(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	var req completeLessonRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	progress, err := c.ProgressService.CompleteLesson(ctx.Request.Context(), user.UserID, ctx.Param("id"), req.TimeSpent)
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 开始测评
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path string true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/start [post]
func (c *ProgressController) StartAssessment(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	progress, err := c.ProgressService.StartAssessment(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 课程进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path string true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{id}/progress [get]
func (c *ProgressController) GetCourseProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	progress, err := c.ProgressService.GetCourseProgress(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

// @Summary 我的全部课程进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/progress [get]
func (c *ProgressController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	list, err := c.ProgressService.ListStudentProgress(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, list)
}
