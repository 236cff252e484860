package domain

const (
	FlowBadges  = "badges"
	FlowUpscale = "upscale"
)

// FormatPNG 是唯一支持的输出格式。
const FormatPNG = "png"

// DefaultScale 是 upscale 的内置默认倍数。
const DefaultScale = 4

// WorkItem 是一次转换的最小单元。
//
// 不变量：
// - FinalPath 只由 Name（或输入文件名）+ 输出目录决定
// - RawPath 为空表示没有中间产物（upscale 直接读取 Source）
type WorkItem struct {
	Name      Name
	Source    string // badges: SVG URL；upscale: 输入 PNG 的绝对路径
	RawPath   string
	FinalPath string
}

// IsVector 表示该条目需要先抓取再栅格化。
func (w WorkItem) IsVector() bool { return w.RawPath != "" }

// Params 是整批共享的转换参数（构造后只读，不允许按条目覆盖）。
type Params struct {
	Scale  int
	Format string
}

// DefaultParams 返回 scale=4、format=png 的默认参数。
func DefaultParams() Params {
	return Params{Scale: DefaultScale, Format: FormatPNG}
}

// Rejected 是构造 Batch 时未通过校验的输入（例如非法标识）。
// 它不会进入流水线，但必须作为 failed 条目出现在 report 里。
type Rejected struct {
	Input  string
	Reason string
}

// Batch 独占一次运行的所有条目与参数；运行之间不共享任何状态（磁盘文件除外）。
type Batch struct {
	Flow     string
	OutDir   string
	Params   Params
	Items    []WorkItem
	Rejected []Rejected
}
