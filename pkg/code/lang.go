package code

import (
	"errors"
	"strings"
	"sync/atomic"
)

// lang stores the English and Chinese text of a message
// lang 类型，用来存储英文和中文文本
type lang struct {
	en   string // English // 英文
	zhCN string // Chinese // 中文
}

// FallbackLang is used when a message has no text for the requested language
// FallbackLang 当请求的语言没有对应文本时使用
const FallbackLang = "en"

// defaultLang is ready before any package level code is built from it
// defaultLang 在包级变量（错误码）初始化之前就已可用
var defaultLang = newDefaultLang()

func newDefaultLang() *atomic.Value {
	v := &atomic.Value{}
	v.Store(FallbackLang)
	return v
}

// GetMessage returns the message in the process default language
// GetMessage 返回进程默认语言的消息
func (l lang) GetMessage() string {
	return l.Message(GetGlobalDefaultLang())
}

// Message returns the message for the given language, falling back to English
// Message 根据语言返回消息，缺失时回退到英文
func (l lang) Message(language string) string {
	switch normalizeLang(language) {
	case "zh":
		if l.zhCN != "" {
			return l.zhCN
		}
	}
	return l.en
}

// GetSupportedLanguages returns every language a message can carry
// GetSupportedLanguages 返回支持的所有语言
func GetSupportedLanguages() []string {
	return []string{"en", "zh"}
}

// SetGlobalDefaultLang sets the process default language, it is called once at startup
// SetGlobalDefaultLang 设置进程默认语言，仅在启动时调用
func SetGlobalDefaultLang(language string) error {
	l := normalizeLang(language)
	for _, s := range GetSupportedLanguages() {
		if s == l {
			defaultLang.Store(l)
			return nil
		}
	}
	defaultLang.Store(FallbackLang)
	return errors.New("unsupported language type, set defaulting to " + FallbackLang)
}

// GetGlobalDefaultLang gets the process default language
// GetGlobalDefaultLang 获取进程默认语言
func GetGlobalDefaultLang() string {
	if l, ok := defaultLang.Load().(string); ok {
		return l
	}
	return FallbackLang
}

func normalizeLang(language string) string {
	l := strings.ToLower(strings.ReplaceAll(language, "-", "_"))
	if strings.HasPrefix(l, "zh") {
		return "zh"
	}
	if strings.HasPrefix(l, "en") {
		return "en"
	}
	return l
}
