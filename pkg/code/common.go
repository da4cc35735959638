package code

import "net/http"

var (
	Success = NewSuss(1, lang{en: "Success", zhCN: "成功"})
	Failed  = NewError(0, http.StatusOK, lang{en: "Failed", zhCN: "失败"})

	ErrorServerInternal  = NewError(500, http.StatusInternalServerError, lang{en: "Internal Server Error", zhCN: "服务器内部错误"})
	ErrorNotFoundAPI     = NewError(404, http.StatusNotFound, lang{en: "API not found", zhCN: "接口不存在"})
	ErrorInvalidParams   = NewError(400, http.StatusBadRequest, lang{en: "Invalid parameters", zhCN: "参数错误"})
	ErrorTooManyRequests = NewError(429, http.StatusTooManyRequests, lang{en: "Too many requests", zhCN: "请求过多"})

	ErrorUsernameRequired = NewError(401, http.StatusBadRequest, lang{en: "Username is required", zhCN: "用户名不能为空"})
	ErrorNoteIDRequired   = NewError(402, http.StatusBadRequest, lang{en: "Note ID is required", zhCN: "笔记 ID 不能为空"})

	ErrorNoteNotFound    = NewError(4001, http.StatusNotFound, lang{en: "Note not found", zhCN: "笔记不存在"})
	ErrorNoteSaveFailed  = NewError(4002, http.StatusInternalServerError, lang{en: "Failed to save note", zhCN: "笔记保存失败"})
	ErrorNoteDeleteRetry = NewError(4003, http.StatusServiceUnavailable, lang{en: "Note deletion incomplete, please retry", zhCN: "笔记删除未完成，请重试"})
	ErrorDBQuery         = NewError(4004, http.StatusInternalServerError, lang{en: "Database query failed", zhCN: "数据库查询失败"})
	ErrorCacheBackend    = NewError(4005, http.StatusInternalServerError, lang{en: "Cache backend failed", zhCN: "缓存服务异常"})
)
