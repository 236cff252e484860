// Package watch 监听 upscale 的输入目录，在 .png 变化平息后触发一次重跑。
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/John-Robertt/assetprep/internal/scan"
)

// DefaultDebounce 是事件平息窗口。
const DefaultDebounce = 500 * time.Millisecond

// Dir 监听 dir（不递归），每当有 .png 被创建/写入/改名，等待 debounce 内无新事件后调用一次 fn。
//
// fn 在监听 goroutine 中串行执行，两次运行不会重叠；fn 返回的错误只记录日志，不中断监听。
// ctx 取消时返回 nil。
func Dir(ctx context.Context, dir string, logger *zap.Logger, debounce time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("watch：fn 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败：%w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("监听目录失败 %q：%w", dir, err)
	}
	logger.Info("开始监听", zap.String("dir", dir))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !Relevant(ev) {
				continue
			}
			logger.Debug("文件变化", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pending = true

		case <-timer.C:
			pending = false
			if err := fn(ctx); err != nil {
				logger.Warn("重跑失败", zap.Error(err))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher 错误", zap.Error(err))
		}
	}
}

// Relevant 判断事件是否应触发重跑：只关心 .png（忽略 dotfile）的创建、写入与改名。
func Relevant(ev fsnotify.Event) bool {
	if !scan.IsPNGName(filepath.Base(ev.Name)) {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}
