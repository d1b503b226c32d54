package controller

import (
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	CascadeService     *service.CascadeService
	CertificateService *service.CertificateService
}

func NewEnrollmentController(cascadeService *service.CascadeService, certificateService *service.CertificateService) *EnrollmentController {
	return &EnrollmentController{CascadeService: cascadeService, CertificateService: certificateService}
}

// @Summary 项目报名状态
// @Tags 项目
// @Produce json
// @Security BearerAuth
// @Param id path string true "项目ID"
// @Success 200 {object} util.Response
// @Router /api/programs/{id}/enrollment [get]
func (c *EnrollmentController) GetEnrollment(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	enrollment, err := c.CascadeService.GetEnrollment(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}

// @Summary 项目证书
// @Tags 项目
// @Produce json
// @Security BearerAuth
// @Param id path string true "项目ID"
// @Success 200 {object} util.Response
// @Router /api/programs/{id}/certificate [get]
func (c *EnrollmentController) GetCertificate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	cert, err := c.CertificateService.GetActive(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, cert)
}

// @Summary 吊销证书
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "证书ID"
// @Success 200 {object} util.Response
// @Router /api/admin/certificates/{id} [delete]
func (c *EnrollmentController) RevokeCertificate(ctx *gin.Context) {
	cert, err := c.CertificateService.Revoke(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.ServiceError(ctx, err)
		return
	}
	util.Success(ctx, cert)
}
