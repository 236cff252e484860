package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/assetprep/internal/config"
	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/infra/fsx"
	"github.com/John-Robertt/assetprep/internal/locator"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	// .env 可选：不存在不算错误；已存在的环境变量优先。
	_ = godotenv.Load()

	switch args[0] {
	case domain.FlowBadges, domain.FlowUpscale:
		if code := flowCmd(args[0], args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

func flowCmd(flow string, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printFlowUsage(os.Stdout, flow)
			return 0
		}
	}

	cli, err := parseFlowArgs(flow, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printFlowUsage(os.Stderr, flow)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	tty := isTTY(os.Stdout)
	eff, err := config.LoadEffective(cwd, cli, os.Getenv)
	if err != nil {
		emitReport(os.Stdout, os.Stderr, tty, reportForConfigError(flow, err))
		return 1
	}

	logger := newLogger(os.Stderr)
	defer func() { _ = logger.Sync() }()

	a := newApp(eff, logger, os.Stdout, os.Stderr, tty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if eff.Watch {
		return a.watch(ctx)
	}
	return a.runOnce(ctx)
}

// parseFlowArgs 手写解析（flag 包不支持“位置参数与选项混排”）。
//
// badges：位置参数是标识或完整 SVG URL
// upscale：位置参数是输入目录（至多一个）
func parseFlowArgs(flow string, args []string) (config.CLIArgs, error) {
	cli := config.CLIArgs{Flow: flow}

	for i := 0; i < len(args); i++ {
		a := args[i]

		name, val, hasVal := strings.Cut(a, "=")
		if !strings.HasPrefix(a, "--") {
			name, hasVal = "", false
		}
		takeValue := func() (string, error) {
			if hasVal {
				return val, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s 需要一个值", name)
			}
			i++
			return args[i], nil
		}

		switch name {
		case "--config":
			v, err := takeValue()
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.ConfigPath = v
		case "--out":
			v, err := takeValue()
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.OutDir = v
		case "--report":
			v, err := takeValue()
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.ReportPath = v
		case "--base-url", "--index":
			if flow != domain.FlowBadges {
				return config.CLIArgs{}, fmt.Errorf("%s 只适用于 badges", name)
			}
			v, err := takeValue()
			if err != nil {
				return config.CLIArgs{}, err
			}
			if name == "--index" {
				cli.IndexURL = v
			} else {
				cli.BaseURL = v
			}
		case "--scale":
			if flow != domain.FlowUpscale {
				return config.CLIArgs{}, fmt.Errorf("--scale 只适用于 upscale")
			}
			v, err := takeValue()
			if err != nil {
				return config.CLIArgs{}, err
			}
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return config.CLIArgs{}, fmt.Errorf("--scale 必须是整数，实际是 %q", v)
			}
			cli.Scale = n
			cli.ScaleSet = true
		case "--watch":
			if flow != domain.FlowUpscale {
				return config.CLIArgs{}, fmt.Errorf("--watch 只适用于 upscale")
			}
			if hasVal {
				b, err := strconv.ParseBool(val)
				if err != nil {
					return config.CLIArgs{}, fmt.Errorf("--watch 只能是 true 或 false，实际是 %q", val)
				}
				cli.Watch = b
			} else {
				cli.Watch = true
			}
		default:
			if strings.HasPrefix(a, "-") {
				return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
			}
			if flow == domain.FlowBadges {
				cli.Names = append(cli.Names, a)
				continue
			}
			if cli.InputDir != "" {
				return config.CLIArgs{}, fmt.Errorf("重复的输入目录：%q 与 %q", cli.InputDir, a)
			}
			cli.InputDir = a
		}
	}

	return cli, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  assetprep badges  [NAME|URL ...] [--out DIR] [--base-url URL] [--index URL] [--config FILE] [--report FILE]
  assetprep upscale [INPUT_DIR] [--out DIR] [--scale N] [--watch] [--config FILE] [--report FILE]

命令：
  badges   下载 SVG 徽章并栅格化为 PNG（保留透明），成功后删除 SVG
  upscale  把目录下所有 .png 按整数倍最近邻放大

使用 "assetprep <命令> --help" 查看详细说明。
`)
}

func printFlowUsage(w io.Writer, flow string) {
	if flow == domain.FlowBadges {
		fmt.Fprint(w, `用法：
  assetprep badges [NAME|URL ...] [选项]

参数：
  NAME|URL    徽章标识（如 CIRCLE_MIDDLE）或完整 SVG URL；给出后整体替换配置文件中的名单
  --out       输出目录（同时存放中间 SVG）
  --base-url  标识拼接 URL 的前缀（默认 `+locator.DefaultBadgeBaseURL+`）
  --index     从 HTML 索引页收集 .svg 链接，追加到名单
  --config    配置文件（默认 ./`+config.DefaultFileName+`，可选）
  --report    额外把 RunReport JSON 写入该文件
  -h, --help  显示帮助
`)
		return
	}
	fmt.Fprint(w, `用法：
  assetprep upscale [INPUT_DIR] [选项]

参数：
  INPUT_DIR   输入目录（只扫描当前层级的 .png，扩展名不区分大小写）
  --out       输出目录（不能与输入目录相同）
  --scale     放大倍数，正整数（默认 4）
  --watch     处理一次后持续监听输入目录，有新 .png 时重跑
  --config    配置文件（默认 ./`+config.DefaultFileName+`，可选）
  --report    额外把 RunReport JSON 写入该文件
  -h, --help  显示帮助
`)
}

// emitReport 输出最终结果。
//
// stdout 是 TTY：摘要行写 stdout，失败条目逐行写 stderr
// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON，摘要走 stderr
func emitReport(stdout, stderr io.Writer, tty bool, rr domain.RunReport) {
	summary := fmt.Sprintf("完成：converted=%d skipped=%d failed=%d\n",
		rr.Summary.Converted, rr.Summary.Skipped, rr.Summary.Failed,
	)
	if tty {
		fmt.Fprint(stdout, summary)
		for _, it := range rr.FailedItems() {
			key := it.Name
			if key == "" {
				// 非法输入/配置错误等合成条目：用原始输入做定位锚点。
				key = it.Source
			}
			if key == "" {
				key = "<unknown>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprint(stderr, summary)
}

func reportForConfigError(flow string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Flow:       flow,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// newLogger 构造写往 w 的 console logger（只用于过程信息，绝不写 stdout）。
func newLogger(w io.Writer) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	enc.CallerKey = ""
	enc.StacktraceKey = ""

	level := zap.InfoLevel
	if os.Getenv("ASSETPREP_DEBUG") != "" {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}
