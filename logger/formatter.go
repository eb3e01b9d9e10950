package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kr/pretty"
	"github.com/logrusorgru/aurora"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

func newJSONFormatter(conf JSONFormatConfig) *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		DisableHTMLEscape: true,
		DisableTimestamp:  conf.DisableTimestamp,
		TimestampFormat:   conf.TimestampFormat,
	}
}

// lineFormatter writes one line per entry:
//
//	2024-03-01T12:30:45Z INFO  dispatch     Dispatched folder folder=/raw/run1 outcome=submitted
//
// Level and namespace are coloured when the output is a terminal.
type lineFormatter struct {
	conf TextFormatConfig
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	color := !f.conf.DisableColors && (f.conf.ForceColors || isTerminal(entry.Logger.Out))

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	if !f.conf.DisableTimestamp {
		format := f.conf.TimestampFormat
		if format == "" {
			format = defaultTimestampFormat
		}
		b.WriteString(entry.Time.Format(format))
		b.WriteByte(' ')
	}

	lvl := strings.ToUpper(entry.Level.String())
	if entry.Level == logrus.WarnLevel {
		lvl = "WARN"
	}
	lvl = fmt.Sprintf("%-5s", lvl)
	ns, _ := entry.Data["ns"].(string)
	ns = fmt.Sprintf("%-12s", ns)
	if color {
		c := levelColor(entry.Level)
		b.WriteString(aurora.Colorize(lvl, c).String())
		b.WriteByte(' ')
		b.WriteString(aurora.Colorize(ns, c|aurora.BoldFm).String())
	} else {
		b.WriteString(lvl)
		b.WriteByte(' ')
		b.WriteString(ns)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "ns" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%s", k, fieldValue(entry.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelColor(lvl logrus.Level) aurora.Color {
	switch lvl {
	case logrus.DebugLevel:
		return aurora.MagentaFg
	case logrus.WarnLevel:
		return aurora.YellowFg
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return aurora.RedFg
	}
	return aurora.CyanFg
}

// fieldValue renders v on a single line, quoted when it holds spaces.
func fieldValue(v interface{}) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case error:
		s = x.Error()
	case fmt.Stringer:
		s = x.String()
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		s = fmt.Sprint(x)
	default:
		s = pretty.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
