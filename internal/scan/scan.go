package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanPNGs 列出 dir 下（不递归）所有扩展名为 .png 的普通文件，返回绝对路径。
//
// 规则：
// - 扩展名大小写不敏感（.PNG 同样命中）
// - 以 '.' 开头的文件跳过（原子写入的临时文件）
// - 输出按文件名排序，保证跨平台稳定
//
// 注意：扫描只做 ReadDir，不读文件内容。
func ScanPNGs(dir string) ([]string, error) {
	dir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !IsPNGName(name) {
			continue
		}
		// 只收普通文件；符号链接需要 Info 才能判断，目录直接跳过。
		if e.IsDir() {
			continue
		}
		if !e.Type().IsRegular() {
			fi, err := os.Stat(filepath.Join(dir, name))
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
		}
		files = append(files, filepath.Join(dir, name))
	}

	sort.Strings(files)
	return files, nil
}

// IsPNGName 判断文件名是否是 upscale 的输入（watch 也用同一规则过滤事件）。
func IsPNGName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".png")
}
