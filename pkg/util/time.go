package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string, supports the 'd' (day) suffix.
// A bare number is read as seconds.
// ParseDuration 解析时间字符串，支持 'd' (天) 后缀，纯数字按秒处理
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if _, err := strconv.Atoi(s); err == nil {
		s += "s"
	}
	return time.ParseDuration(s)
}

// DurationOr parses s and returns def when s is empty, invalid or not positive
// DurationOr 解析 s，为空、非法或非正数时返回 def
func DurationOr(s string, def time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return def
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// NowUTCMilli returns the current UTC time truncated to milliseconds,
// the precision every stored timestamp survives a round trip with
// NowUTCMilli 返回截断到毫秒的当前 UTC 时间
func NowUTCMilli() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
