package resources

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// MainPath 是入口源文件在虚拟文件系统中的固定路径。
const MainPath = "/main.papyrus"

// Normalize 将宿主传入的路径规范化为 LogicalPath：
//   - 反斜杠统一为正斜杠
//   - 补齐前导 '/'，清理多余分隔符与 "." 片段
//   - 拒绝空路径、NUL、非法 UTF-8、以 '/' 结尾的目录路径，以及 ".." 逃逸根目录的路径
func Normalize(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: 路径为空", ErrInvalidPath)
	}
	if !utf8.ValidString(p) {
		return "", fmt.Errorf("%w: 路径不是合法的 UTF-8：%q", ErrInvalidPath, p)
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: 路径包含 NUL：%q", ErrInvalidPath, p)
	}
	s := strings.ReplaceAll(p, "\\", "/")
	if strings.HasSuffix(s, "/") {
		return "", fmt.Errorf("%w: 路径指向目录：%q", ErrInvalidPath, p)
	}
	// 先按相对路径清理，才能发现 ".." 逃逸；path.Clean 对根路径会静默吞掉 ".."。
	rel := path.Clean(strings.TrimLeft(s, "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: 路径越界：%q", ErrInvalidPath, p)
	}
	return "/" + rel, nil
}
