package api_router

import (
	"github.com/haierkeys/psnotes-service/internal/app"
	"github.com/haierkeys/psnotes-service/internal/dto"
	pkgapp "github.com/haierkeys/psnotes-service/pkg/app"
	"github.com/haierkeys/psnotes-service/pkg/code"
	apperrors "github.com/haierkeys/psnotes-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NoteHandler 笔记 API 路由处理器
// 使用 App Container 注入依赖，支持统一错误处理
type NoteHandler struct {
	*Handler
}

// NewNoteHandler 创建 NoteHandler 实例
func NewNoteHandler(a *app.App) *NoteHandler {
	return &NoteHandler{
		Handler: NewHandler(a),
	}
}

// Get 获取单条笔记详情
// @Summary 获取笔记详情
// @Description 获取用户的一条笔记，笔记不属于该用户时返回不存在
// @Tags 笔记
// @Produce json
// @Param username path string true "用户名"
// @Param id path string true "笔记 ID"
// @Success 200 {object} pkgapp.Res{data=dto.NoteDTO} "成功"
// @Router /api/notes/{username}/{id} [get]
func (h *NoteHandler) Get(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.NoteGetRequest{}

	// 参数绑定和验证
	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("NoteHandler.Get.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	ctx := c.Request.Context()

	note, err := h.App.NoteService.Get(ctx, params.Username, params)
	if err != nil {
		h.logError(ctx, "NoteHandler.Get", err)
		apperrors.ErrorResponse(c, toCode(err))
		return
	}

	response.ToResponse(code.Success.WithData(note))
}

// Save 创建或修改笔记
// @Summary 创建或修改笔记
// @Description 请求体不带 id 时创建新笔记，带 id 时修改该用户已有的笔记并保留创建时间
// @Tags 笔记
// @Accept json
// @Produce json
// @Param username path string true "用户名"
// @Param params body dto.NoteSaveRequest true "笔记内容"
// @Success 200 {object} pkgapp.Res{data=dto.NoteDTO} "成功"
// @Router /api/notes/{username} [post]
func (h *NoteHandler) Save(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.NoteSaveRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("NoteHandler.Save.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	ctx := c.Request.Context()

	note, err := h.App.NoteService.Save(ctx, params.Username, params)
	if err != nil {
		h.logError(ctx, "NoteHandler.Save", err)
		apperrors.ErrorResponse(c, toCode(err))
		return
	}

	response.ToResponse(code.Success.WithData(note))
}

// List 获取笔记摘要列表
// @Summary 获取笔记列表
// @Description 获取用户全部笔记的摘要（不含内容），后端故障时返回空列表
// @Tags 笔记
// @Produce json
// @Param username path string true "用户名"
// @Success 200 {object} pkgapp.Res{data=pkgapp.ListRes{list=[]dto.NoteSummaryDTO}} "成功"
// @Router /api/notes/{username} [get]
func (h *NoteHandler) List(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.NoteListRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("NoteHandler.List.BindAndValid errs", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	ctx := c.Request.Context()

	notes, err := h.App.NoteService.List(ctx, params.Username)
	if err != nil {
		h.logError(ctx, "NoteHandler.List", err)
		apperrors.ErrorResponse(c, toCode(err))
		return
	}

	response.ToResponseList(code.Success, notes, len(notes))
}

// Delete 删除笔记
// @Summary 删除笔记
// @Description 删除用户的一条笔记，删除未完成时返回可重试错误
// @Tags 笔记
// @Produce json
// @Param username path string true "用户名"
// @Param id path string true "笔记 ID"
// @Success 200 {object} pkgapp.Res "成功"
// @Router /api/notes/{username}/{id} [delete]
func (h *NoteHandler) Delete(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.NoteDeleteRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("NoteHandler.Delete.BindAndValid errs", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	ctx := c.Request.Context()

	if err := h.App.NoteService.Delete(ctx, params.Username, params); err != nil {
		h.logError(ctx, "NoteHandler.Delete", err)
		apperrors.ErrorResponse(c, toCode(err))
		return
	}

	response.ToResponse(code.Success)
}
