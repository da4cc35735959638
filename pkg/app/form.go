package app

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

type ValidError struct {
	Key     string
	Message string
}

type ValidErrors []*ValidError

func (v *ValidError) Error() string {
	return v.Message
}

func (v ValidErrors) Error() string {
	return strings.Join(v.Errors(), ",")
}

func (v ValidErrors) Errors() []string {
	var errs []string
	for _, err := range v {
		errs = append(errs, err.Error())
	}
	return errs
}

// ErrorsToString joins every message, used for response details
// ErrorsToString 拼接所有错误消息，用于响应详情
func (v ValidErrors) ErrorsToString() string {
	return strings.Join(v.Errors(), "; ")
}

// MapsToString returns field -> message pairs
// MapsToString 返回 字段 -> 消息 的映射
func (v ValidErrors) MapsToString() map[string]string {
	m := make(map[string]string, len(v))
	for _, err := range v {
		m[err.Key] = err.Message
	}
	return m
}

// BindAndValid binds path parameters and then the request body or query into v
// and validates it. Messages are translated with the translator the lang
// middleware put on the context.
// BindAndValid 先绑定路径参数，再绑定请求体或查询参数，并进行校验
func BindAndValid(c *gin.Context, v any) (bool, ValidErrors) {
	if err := c.ShouldBindUri(v); err != nil {
		return false, translateErrors(c, err)
	}

	b := binding.Default(c.Request.Method, c.ContentType())
	if c.Request.ContentLength == 0 && b != binding.Form && b != binding.Query {
		// No body: only the query string can contribute.
		// 无请求体：只绑定查询参数
		b = binding.Query
	}
	if err := c.ShouldBindWith(v, b); err != nil {
		return false, translateErrors(c, err)
	}

	return true, nil
}

func translateErrors(c *gin.Context, err error) ValidErrors {
	var errs ValidErrors

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return append(errs, &ValidError{Key: "", Message: err.Error()})
	}

	trans, ok := c.Value("trans").(ut.Translator)
	if !ok {
		for _, fe := range verrs {
			errs = append(errs, &ValidError{Key: fe.Field(), Message: fe.Error()})
		}
		return errs
	}

	for key, value := range verrs.Translate(trans) {
		errs = append(errs, &ValidError{Key: key, Message: value})
	}
	return errs
}
