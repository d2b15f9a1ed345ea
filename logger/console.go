package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

type levelTag struct {
	tag   string
	color string
}

var levelTags = map[string]levelTag{
	zerolog.LevelTraceValue: {"TRC", "\033[90m"},
	zerolog.LevelDebugValue: {"DBG", "\033[36m"},
	zerolog.LevelInfoValue:  {"INF", "\033[32m"},
	zerolog.LevelWarnValue:  {"WRN", "\033[33m"},
	zerolog.LevelErrorValue: {"ERR", "\033[31m"},
	zerolog.LevelFatalValue: {"FTL", "\033[35m"},
	zerolog.LevelPanicValue: {"PNC", "\033[35m"},
}

const colorReset = "\033[0m"

// newConsoleWriter renders "[SVC][LVL] message key:value" lines, where SVC
// is the first three letters of the service name.
func newConsoleWriter(w io.Writer, serviceName string, noColor bool) zerolog.ConsoleWriter {
	paint := func(color, s string) string {
		if noColor {
			return s
		}
		return color + s + colorReset
	}

	var prefix string
	if len(serviceName) >= 3 {
		prefix = paint("\033[34m", "["+strings.ToUpper(serviceName[:3])+"]")
	}

	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
		FormatLevel: func(i interface{}) string {
			name := fmt.Sprint(i)
			lt, ok := levelTags[name]
			if !ok {
				return prefix + "[" + strings.ToUpper(name) + "]"
			}
			return prefix + paint(lt.color, "["+lt.tag+"]")
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		},
		FormatFieldValue: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		},
	}
}
