package middleware

import (
	"strings"

	"github.com/haierkeys/psnotes-service/pkg/code"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

const (
	// LangKey gin.Context 中存储请求语言的键
	LangKey = "lang"
	// TransKey gin.Context 中存储校验翻译器的键
	TransKey = "trans"
)

// LangWithTranslator 创建带翻译器的语言中间件（支持依赖注入）
// 语言只保存在本次请求的 gin.Context 中
func LangWithTranslator(uni *ut.UniversalTranslator) gin.HandlerFunc {

	return func(c *gin.Context) {

		var lang string

		if s, exist := c.GetQuery("lang"); exist {
			lang = s
		} else if s = c.GetHeader("lang"); len(s) != 0 {
			lang = s
		} else if s = c.GetHeader("Accept-Language"); len(s) != 0 {
			lang = strings.SplitN(s, ",", 2)[0]
		}

		lang = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "-", "_"))
		if strings.HasPrefix(lang, "zh") {
			lang = "zh"
		}

		trans, found := uni.GetTranslator(lang)
		if !found {
			lang = code.GetGlobalDefaultLang()
			trans, _ = uni.GetTranslator(lang)
		}

		c.Set(TransKey, trans)
		c.Set(LangKey, lang)

		c.Next()
	}
}

// GetLangFromGin 获取当前请求的语言
func GetLangFromGin(c *gin.Context) string {
	if c == nil {
		return code.GetGlobalDefaultLang()
	}
	if lang := c.GetString(LangKey); lang != "" {
		return lang
	}
	return code.GetGlobalDefaultLang()
}
