// Package fileurl small filesystem helpers used at startup
// Package fileurl 启动阶段使用的文件系统辅助函数
package fileurl

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// IsExist reports whether dst exists
// IsExist 判断文件或目录是否存在
func IsExist(dst string) bool {
	_, err := os.Stat(dst)
	if err == nil {
		return true
	}
	return !errors.Is(err, fs.ErrNotExist)
}

// CreatePath creates the parent directory of the file dst
// CreatePath 创建文件 dst 的上级目录
func CreatePath(dst string, perm os.FileMode) error {
	dir := filepath.Dir(dst)
	if IsExist(dir) {
		return nil
	}
	return os.MkdirAll(dir, perm)
}
