package collector

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/status-agent/pkg/metric"
)

// 状态报告（status-version 1）各段标题
const (
	headerClientList = "OpenVPN CLIENT LIST"
	headerRouting    = "ROUTING TABLE"
	headerGlobal     = "GLOBAL STATS"
	headerEnd        = "END"

	clientFields = 5 // Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since
)

type section int

const (
	sectionNone section = iota
	sectionClients
	sectionRouting
	sectionGlobal
)

// ParseWarning 单行格式错误，跳过该行并记录，不影响其余行
type ParseWarning struct {
	Instance string
	LineNo   int
	Line     string
	Reason   string
}

func (w *ParseWarning) Error() string {
	return fmt.Sprintf("%s:%d: %s: %q", w.Instance, w.LineNo, w.Reason, w.Line)
}

type clientStats struct {
	rx, tx float64
}

// ParseStatus 解析一份状态报告，返回该实例的指标集合。
//
// 客户端段每行产生 <instance>.clients.<cn>.bytes_rx / bytes_tx 两个指标；
// 全局段每个 "key,value" 产生 <instance>.global.<key>。
// 同一 common name（清洗后）重复出现时以最后一次为准，输出顺序为首次出现顺序。
// 读取错误（非格式错误）通过 error 返回，已解析部分仍然返回。
func ParseStatus(instance string, r io.Reader, ts time.Time) ([]metric.Metric, []*ParseWarning, error) {
	prefix := metric.Sanitize(instance)

	var (
		warnings    []*ParseWarning
		sec         = sectionNone
		lineNo      int
		clients     = map[string]*clientStats{}
		clientOrder []string
		globals     = map[string]float64{}
		globalOrder []string

		sawHeader   bool
		firstLineNo int
		firstLine   string
	)

	warn := func(line, reason string) {
		warnings = append(warnings, &ParseWarning{Instance: instance, LineNo: lineNo, Line: line, Reason: reason})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

scan:
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case headerClientList:
			sec, sawHeader = sectionClients, true
			continue
		case headerRouting:
			sec, sawHeader = sectionRouting, true
			continue
		case headerGlobal:
			sec, sawHeader = sectionGlobal, true
			continue
		case headerEnd:
			break scan
		}
		if firstLineNo == 0 {
			firstLineNo, firstLine = lineNo, line
		}

		switch sec {
		case sectionClients:
			if strings.HasPrefix(line, "Updated,") || strings.HasPrefix(line, "Common Name,") {
				continue
			}
			fields := strings.Split(line, ",")
			if len(fields) != clientFields {
				warn(line, fmt.Sprintf("expected %d fields, got %d", clientFields, len(fields)))
				continue
			}
			cn := strings.TrimSpace(fields[0])
			if cn == "" {
				warn(line, "empty common name")
				continue
			}
			rx, err := parseBytes(fields[2])
			if err != nil {
				warn(line, "bytes received: "+err.Error())
				continue
			}
			tx, err := parseBytes(fields[3])
			if err != nil {
				warn(line, "bytes sent: "+err.Error())
				continue
			}

			key := metric.Sanitize(cn)
			if _, ok := clients[key]; !ok {
				clientOrder = append(clientOrder, key)
			}
			clients[key] = &clientStats{rx: rx, tx: tx}

		case sectionGlobal:
			k, v, ok := strings.Cut(line, ",")
			if !ok {
				warn(line, "expected key,value")
				continue
			}
			val, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				warn(line, "value: "+err.Error())
				continue
			}
			if math.IsNaN(val) || math.IsInf(val, 0) {
				warn(line, "value is not finite")
				continue
			}
			key := metric.SanitizeKey(k)
			if _, ok := globals[key]; !ok {
				globalOrder = append(globalOrder, key)
			}
			globals[key] = val
		}
	}

	// 其他格式（如 status-version 2/3）没有任何可识别的段标题
	if !sawHeader && firstLineNo > 0 {
		warnings = append(warnings, &ParseWarning{
			Instance: instance,
			LineNo:   firstLineNo,
			Line:     firstLine,
			Reason:   "no recognized section header, expected status-version 1",
		})
	}

	out := make([]metric.Metric, 0, len(clientOrder)*2+len(globalOrder))
	for _, key := range clientOrder {
		st := clients[key]
		for _, p := range []struct {
			name  string
			value float64
		}{{"bytes_rx", st.rx}, {"bytes_tx", st.tx}} {
			m, err := metric.New([]string{prefix, "clients", key, p.name}, p.value, ts)
			if err != nil {
				warn(key, err.Error())
				continue
			}
			out = append(out, m.WithKind(metric.Counter))
		}
	}
	for _, key := range globalOrder {
		m, err := metric.New([]string{prefix, "global", key}, globals[key], ts)
		if err != nil {
			warn(key, err.Error())
			continue
		}
		out = append(out, m)
	}

	if err := scanner.Err(); err != nil {
		return out, warnings, fmt.Errorf("read %s: %w", instance, err)
	}
	return out, warnings, nil
}

func parseBytes(s string) (float64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}
