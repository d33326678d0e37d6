// Package metric 定义采集器与处理器之间传递的指标数据模型。
// 指标一旦创建即不可变，路径由若干经过清洗的段组成，以 "." 连接。
package metric

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Delimiter 路径段分隔符
const Delimiter = "."

// ValuePrecision 文本渲染时保留的小数位数（外部契约，归档文件格式依赖此值）
const ValuePrecision = 6

var (
	// ErrInvalidPath 路径段为空、包含分隔符或空白字符
	ErrInvalidPath = errors.New("invalid metric path")
	// ErrInvalidValue 指标值为 NaN 或 Inf
	ErrInvalidValue = errors.New("invalid metric value")
)

// Kind 指标类型，仅作信息用途
type Kind int

const (
	Gauge Kind = iota
	Counter
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	default:
		return "gauge"
	}
}

// Metric 单个测量值（path, value, timestamp）
type Metric struct {
	segments  []string
	value     float64
	timestamp time.Time
	kind      Kind
}

// New 创建指标，校验每个路径段以及值的有限性
func New(segments []string, value float64, timestamp time.Time) (Metric, error) {
	if len(segments) == 0 {
		return Metric{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for i, s := range segments {
		if err := validateSegment(s); err != nil {
			return Metric{}, fmt.Errorf("%w: segment %d %q: %v", ErrInvalidPath, i, s, err)
		}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Metric{}, fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}

	copied := make([]string, len(segments))
	copy(copied, segments)
	return Metric{
		segments:  copied,
		value:     value,
		timestamp: timestamp,
		kind:      Gauge,
	}, nil
}

// WithKind 返回设置了类型的副本
func (m Metric) WithKind(k Kind) Metric {
	m.kind = k
	return m
}

func (m Metric) Path() string         { return strings.Join(m.segments, Delimiter) }
func (m Metric) Value() float64       { return m.value }
func (m Metric) Timestamp() time.Time { return m.timestamp }
func (m Metric) Kind() Kind           { return m.kind }

// Segments 返回路径段副本
func (m Metric) Segments() []string {
	copied := make([]string, len(m.segments))
	copy(copied, m.segments)
	return copied
}

// Render 单行文本形式 "<path> <value>"，值固定 6 位小数
func (m Metric) Render() string {
	return m.Path() + " " + FormatValue(m.value)
}

func (m Metric) String() string { return m.Render() }

// FormatValue 按固定精度格式化指标值
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', ValuePrecision, 64)
}

// ParseValue 解析 Render 输出的值部分
func ParseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
	return v, nil
}

// ParseLine Render 的逆操作，用于读取归档文件
func ParseLine(line string) (string, float64, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("%w: expected \"<path> <value>\", got %q", ErrInvalidPath, line)
	}
	for _, s := range strings.Split(fields[0], Delimiter) {
		if err := validateSegment(s); err != nil {
			return "", 0, fmt.Errorf("%w: %q: %v", ErrInvalidPath, fields[0], err)
		}
	}
	v, err := ParseValue(fields[1])
	if err != nil {
		return "", 0, err
	}
	return fields[0], v, nil
}

func validateSegment(s string) error {
	if s == "" {
		return errors.New("empty segment")
	}
	if strings.Contains(s, Delimiter) {
		return errors.New("contains delimiter")
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return errors.New("contains whitespace")
	}
	return nil
}
