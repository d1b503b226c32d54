package controller

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	SubmissionService *service.SubmissionService
}

func NewSubmissionController(submissionService *service.SubmissionService) *SubmissionController {
	return &SubmissionController{SubmissionService: submissionService}
}

// @Summary 提交测评
// @Tags 测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测评ID"
// @Param body body service.SubmitRequest true "answers [{questionIndex, answer}]"
// @Success 201 {object} util.Response
// @Router /api/assessments/{id}/submissions [post]
func (c *SubmissionController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.SubmissionService.Submit(ctx.Request.Context(), user.UserID, ctx.Param("id"), req.Answers)
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Created(ctx, sub)
}

// @Summary 保存测评草稿
// @Tags 测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测评ID"
// @Param body body service.SubmitRequest true "answers [{questionIndex, answer}]"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/draft [put]
func (c *SubmissionController) SaveDraft(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	draft, err := c.SubmissionService.SaveDraft(ctx.Request.Context(), user.UserID, ctx.Param("id"), req.Answers)
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, draft)
}

// @Summary 我在某测评下的所有提交
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path string true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/submissions [get]
func (c *SubmissionController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	subs, err := c.SubmissionService.List(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, subs)
}

// @Summary 提交详情
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/submissions/{id} [get]
func (c *SubmissionController) Get(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	sub, err := c.SubmissionService.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	// 学生只能查看自己的提交
	if sub.StudentID != user.UserID && user.Role != string(model.Teacher) && user.Role != string(model.Admin) {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, sub)
}

// @Summary 教师人工批改
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Param body body service.GradeRequest true "score, feedback"
// @Success 200 {object} util.Response
// @Router /api/teacher/submissions/{id}/grade [post]
func (c *SubmissionController) Grade(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	var req service.GradeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.SubmissionService.GradeManually(ctx.Request.Context(), ctx.Param("id"), req, user.UserID)
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}
