package fsx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV / 权限错误。
var (
	renameFunc = os.Rename
	removeFunc = os.Remove
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示跨盘（EXDEV）导致的 rename 失败。
// 临时文件总是与目标同目录，正常情况下不会出现；出现即视为 io 失败。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动失败（EXDEV）：%q -> %q：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// FileExists 只做 Lstat：
// - 普通文件存在 => (true, nil)
// - 不存在 => (false, nil)
// - 是目录/其它类型 => PathTypeConflictError
//
// 不读内容：空文件或损坏文件同样视为“存在”。
func FileExists(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if fi.IsDir() {
		return false, &PathTypeConflictError{Path: path, Want: "file", Got: "dir"}
	}
	if !fi.Mode().IsRegular() {
		return false, &PathTypeConflictError{Path: path, Want: "regular file", Got: fi.Mode().Type().String()}
	}
	return true, nil
}

// RemoveIfExists 删除文件；文件已不存在时静默返回 (false, nil)。
func RemoveIfExists(path string) (bool, error) {
	if err := removeFunc(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// WriteFileAtomicNoOverwrite 在 dir 下原子写入 name（临时文件 + rename）。
//
// 目标已存在时返回 os.ErrExist，绝不覆盖（最终产物的契约）。
// 注意：存在性检查与 rename 之间不是原子的；并发运行写同一目标属于调用方的单写者约束。
func WriteFileAtomicNoOverwrite(dir, name string, data []byte) error {
	dst := filepath.Join(filepath.Clean(dir), name)
	ok, err := FileExists(dst)
	if err != nil {
		return err
	}
	if ok {
		return os.ErrExist
	}
	return writeFileAtomic(dir, name, data, 0o644)
}

// WriteFileAtomicReplace 写入并覆盖同名文件（raw 中间文件、report）。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	return writeFileAtomic(dir, name, data, 0o644)
}

func writeFileAtomic(dir, name string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(dir, name)

	// 同目录临时文件，前缀带 '.'：扫描 *.png 时会被忽略。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := writeAll(tmp, data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := Rename(tmpName, dst); err != nil {
		return err
	}

	_ = syncDirBestEffort(dir)
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
