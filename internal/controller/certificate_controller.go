package controller

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CertificateController struct {
	Service *service.CertificateService
}

func NewCertificateController(svc *service.CertificateService) *CertificateController {
	return &CertificateController{Service: svc}
}

// @Summary 我的证书
// @Tags 证书模块
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/certificates [get]
func (c *CertificateController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	certs, err := c.Service.ListForStudent(ctx.Request.Context(), user.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": certs, "total": len(certs)})
}

// @Summary 证书详情
// @Description 证书记录，供 PDF 渲染使用；学生只能查看自己的证书
// @Tags 证书模块
// @Produce json
// @Security BearerAuth
// @Param certificateId path string true "证书编号"
// @Success 200 {object} util.Response
// @Router /api/certificates/{certificateId} [get]
func (c *CertificateController) GetCertificate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	cert, err := c.Service.GetCertificate(ctx.Request.Context(), ctx.Param("certificateId"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if user.Role == model.Student && cert.StudentID != user.UserID {
		util.Forbidden(ctx)
		return
	}

	util.Success(ctx, cert)
}

// @Summary 撤销证书
// @Tags 证书模块
// @Produce json
// @Security BearerAuth
// @Param certificateId path string true "证书编号"
// @Success 200 {object} util.Response
// @Router /api/admin/certificates/{certificateId} [delete]
func (c *CertificateController) RevokeCertificate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	certificateID := ctx.Param("certificateId")
	if err := c.Service.RevokeCertificate(ctx.Request.Context(), certificateID, user.UserID); err != nil {
		respondError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"certificateId": certificateID, "revoked": true})
}
