package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/locator"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingInput 表示合并后仍然没有任何输入（badges 无名单、upscale 无输入目录）。
	ErrCodeMissingInput = "config_missing_input"
)

const (
	// DefaultFileName 是 cwd 下自动发现的配置文件名（可选）。
	DefaultFileName = "assetprep.yaml"
	// DefaultFetchTimeout 是单次下载的总超时；0 表示不限。
	DefaultFetchTimeout = 60 * time.Second
)

// 环境变量覆盖（.env 由 CLI 通过 godotenv 预先加载）。
const (
	EnvBadgeBaseURL = "ASSETPREP_BADGE_BASE_URL"
	EnvFetchTimeout = "ASSETPREP_FETCH_TIMEOUT"
	EnvScale        = "ASSETPREP_SCALE"
)

// CLIArgs 保留“是否显式指定”的信息，保证 CLI 能覆盖配置文件中的任何值。
type CLIArgs struct {
	Flow       string
	ConfigPath string

	OutDir string

	// badges
	Names    []string
	BaseURL  string
	IndexURL string

	// upscale
	InputDir string
	Scale    int
	ScaleSet bool
	Watch    bool

	ReportPath string
}

// FileConfig 对应 assetprep.yaml 的解析结构。
type FileConfig struct {
	FetchTimeout string        `yaml:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent"`
	Report       string        `yaml:"report"`
	Badges       BadgesConfig  `yaml:"badges"`
	Upscale      UpscaleConfig `yaml:"upscale"`
}

type BadgesConfig struct {
	BaseURL  string   `yaml:"base_url"`
	IndexURL string   `yaml:"index_url"`
	Names    []string `yaml:"names"`
	OutDir   string   `yaml:"out_dir"`
}

type UpscaleConfig struct {
	InputDir string `yaml:"input_dir"`
	OutDir   string `yaml:"out_dir"`
	Scale    *int   `yaml:"scale"`
}

// EffectiveConfig 是合并并规范化后的最终配置（路径均为 clean + absolute）。
type EffectiveConfig struct {
	Flow   string
	OutDir string
	Params domain.Params

	BaseURL  string
	IndexURL string
	Names    []string

	InputDir string
	Watch    bool

	FetchTimeout time.Duration
	UserAgent    string
	ReportPath   string

	// ConfigFile 为实际读取到的配置文件（未读取则为空）。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	default:
		if e.Err != nil && e.Path != "" {
			return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取配置文件并与环境变量、CLI 参数合并。
//
// 发现规则：
// 1) CLI 给了 --config：必须存在
// 2) 否则尝试 <cwd>/assetprep.yaml（可选）
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 内置默认。
// getenv 为 nil 时使用 os.Getenv。
func LoadEffective(cwd string, cli CLIArgs, getenv func(string) string) (EffectiveConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		fc      FileConfig
		cfgPath string
		exists  bool
	)
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, DefaultFileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}
	if !exists {
		cfgPath = ""
	}

	// 相对路径（无论来自 CLI 还是配置文件）统一相对于 cwd。
	eff, err := merge(cwdAbs, cli, fc, getenv)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			if ce.Path == "" {
				ce.Path = cfgPath
			}
			return EffectiveConfig{}, ce
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigFile = cfgPath
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, getenv func(string) string) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		Flow:   cli.Flow,
		Params: domain.DefaultParams(),
		Watch:  cli.Watch,
	}

	// fetch_timeout：env > file > 默认
	eff.FetchTimeout = DefaultFetchTimeout
	if s := strings.TrimSpace(fc.FetchTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return EffectiveConfig{}, fmt.Errorf("fetch_timeout 无效：%q", s)
		}
		eff.FetchTimeout = d
	}
	if s := strings.TrimSpace(getenv(EnvFetchTimeout)); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return EffectiveConfig{}, fmt.Errorf("%s 无效：%q", EnvFetchTimeout, s)
		}
		eff.FetchTimeout = d
	}

	eff.UserAgent = strings.TrimSpace(fc.UserAgent)

	// report：CLI > file
	switch {
	case strings.TrimSpace(cli.ReportPath) != "":
		eff.ReportPath = absCleanFrom(cwdAbs, cli.ReportPath)
	case strings.TrimSpace(fc.Report) != "":
		eff.ReportPath = absCleanFrom(cwdAbs, fc.Report)
	}

	switch cli.Flow {
	case domain.FlowBadges:
		return mergeBadges(eff, cwdAbs, cli, fc.Badges, getenv)
	case domain.FlowUpscale:
		return mergeUpscale(eff, cwdAbs, cli, fc.Upscale, getenv)
	default:
		return EffectiveConfig{}, fmt.Errorf("未知 flow：%q", cli.Flow)
	}
}

func mergeBadges(eff EffectiveConfig, cwdAbs string, cli CLIArgs, bc BadgesConfig, getenv func(string) string) (EffectiveConfig, error) {
	// base_url：CLI > env > file > 默认
	eff.BaseURL = locator.DefaultBadgeBaseURL
	if s := strings.TrimSpace(bc.BaseURL); s != "" {
		eff.BaseURL = s
	}
	if s := strings.TrimSpace(getenv(EnvBadgeBaseURL)); s != "" {
		eff.BaseURL = s
	}
	if s := strings.TrimSpace(cli.BaseURL); s != "" {
		eff.BaseURL = s
	}
	if err := validateHTTPURL("base_url", eff.BaseURL); err != nil {
		return EffectiveConfig{}, err
	}

	eff.IndexURL = strings.TrimSpace(bc.IndexURL)
	if s := strings.TrimSpace(cli.IndexURL); s != "" {
		eff.IndexURL = s
	}
	if eff.IndexURL != "" {
		if err := validateHTTPURL("index_url", eff.IndexURL); err != nil {
			return EffectiveConfig{}, err
		}
	}

	// names：CLI 给了就整体替换配置文件中的名单（不做拼接）。
	names := bc.Names
	if len(cli.Names) > 0 {
		names = cli.Names
	}
	eff.Names = cleanList(names)
	if len(eff.Names) == 0 && eff.IndexURL == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Err: errors.New("badges 需要 names 或 index_url")}
	}

	out, err := pickDir(cwdAbs, cli.OutDir, bc.OutDir)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.OutDir = out
	return eff, nil
}

func mergeUpscale(eff EffectiveConfig, cwdAbs string, cli CLIArgs, uc UpscaleConfig, getenv func(string) string) (EffectiveConfig, error) {
	// scale：CLI > env > file > 默认 4
	scale := domain.DefaultScale
	if uc.Scale != nil {
		scale = *uc.Scale
	}
	if s := strings.TrimSpace(getenv(EnvScale)); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("%s 无效：%q", EnvScale, s)
		}
		scale = v
	}
	if cli.ScaleSet {
		scale = cli.Scale
	}
	if scale <= 0 {
		return EffectiveConfig{}, fmt.Errorf("scale 必须是正整数，实际 %d", scale)
	}
	eff.Params.Scale = scale

	switch {
	case strings.TrimSpace(cli.InputDir) != "":
		eff.InputDir = absCleanFrom(cwdAbs, cli.InputDir)
	case strings.TrimSpace(uc.InputDir) != "":
		eff.InputDir = absCleanFrom(cwdAbs, uc.InputDir)
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Err: errors.New("upscale 需要 input_dir")}
	}

	out, err := pickDir(cwdAbs, cli.OutDir, uc.OutDir)
	if err != nil {
		return EffectiveConfig{}, err
	}
	// 同目录会让 Guard 把每个输入都当成“已完成”，直接拒绝。
	if out == eff.InputDir {
		return EffectiveConfig{}, fmt.Errorf("out_dir 不能与 input_dir 相同：%q", out)
	}
	eff.OutDir = out
	return eff, nil
}

func pickDir(cwdAbs, cliVal, fileVal string) (string, error) {
	switch {
	case strings.TrimSpace(cliVal) != "":
		return absCleanFrom(cwdAbs, cliVal), nil
	case strings.TrimSpace(fileVal) != "":
		return absCleanFrom(cwdAbs, fileVal), nil
	default:
		return "", errors.New("out_dir 不能为空")
	}
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

func cleanList(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件；未知字段视为错误（避免拼写错误被静默忽略）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			// 空文件：等同于没有任何字段。
			return FileConfig{}, true, nil
		}
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
