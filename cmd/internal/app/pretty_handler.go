package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiDim     = "\x1b[2m"
	ansiBright  = "\x1b[1m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"

	defaultLogWidth = 100
	minLogWidth     = 40
	wrapIndent      = "    "
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var head strings.Builder
	head.WriteString("ts=")
	head.WriteString(applyDim(ts.Format("15:04:05.000"), h.color))
	head.WriteString(" lvl=")
	head.WriteString(levelTag(r.Level, h.color))
	head.WriteString(" msg=")
	head.WriteString(applyBold(r.Message, h.color))

	segs := []string{head.String()}
	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			segs = append(segs, "src="+applyDim(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line), h.color))
		}
	}

	for _, a := range h.attrs {
		segs = h.appendAttr(segs, a, "", false)
	}
	r.Attrs(func(a slog.Attr) bool {
		segs = h.appendAttr(segs, a, "", true)
		return true
	})

	var out string
	if h.color {
		out = strings.Join(wrapSegments(segs, " ", h.terminalWidth(), wrapIndent), "\n")
	} else {
		out = strings.Join(segs, " ")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, out+"\n")
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(h.groups) > 0 {
		// Attrs added inside a group keep that group even if more groups follow.
		attrs = []slog.Attr{{Key: strings.Join(h.groups, "."), Value: slog.GroupValue(attrs...)}}
	}
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

// appendAttr renders a as key=value segments. grouped applies the handler's open groups.
func (h *prettyHandler) appendAttr(segs []string, a slog.Attr, parent string, grouped bool) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return segs
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return segs
	}

	fullKey := key
	if parent != "" {
		fullKey = parent + "." + key
	}
	if grouped && len(h.groups) > 0 && parent == "" {
		fullKey = strings.Join(h.groups, ".") + "." + fullKey
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			segs = h.appendAttr(segs, ga, fullKey, false)
		}
		return segs
	}

	return append(segs, remapPrettyKey(fullKey)+"="+h.prettyValue(fullKey, a.Value))
}

func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch leafKey(key) {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path":
		path := strings.TrimSpace(v.String())
		if h.color {
			return ansiCyan + path + ansiReset
		}
		return path
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class", "class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	}

	return quoteIfNeeded(valueToString(v))
}

// terminalWidth resolves FRONTDESK_LOG_WIDTH, then COLUMNS, then the default.
// Values below minLogWidth are ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"FRONTDESK_LOG_WIDTH", "COLUMNS"} {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err == nil && n >= minLogWidth {
			return n
		}
	}
	return defaultLogWidth
}

func remapPrettyKey(k string) string {
	prefix := k[:len(k)-len(leafKey(k))]
	switch leafKey(k) {
	case "status_class":
		return prefix + "class"
	case "duration_ms":
		return prefix + "duration"
	default:
		return k
	}
}

func leafKey(k string) string {
	return k[strings.LastIndex(k, ".")+1:]
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("[ERROR]", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("[WARN]", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("[DEBUG]", ansiMagenta, color)
	default:
		return paint("[INFO]", ansiBlue, color)
	}
}

func colorizeHTTPMethod(m string, color bool) string {
	switch m {
	case "GET":
		return paint(m, ansiGreen, color)
	case "POST":
		return paint(m, ansiYellow, color)
	case "DELETE":
		return paint(m, ansiRed, color)
	default:
		return paint(m, ansiCyan, color)
	}
}

func colorizeStatusCode(code int, color bool) string {
	return paint(strconv.Itoa(code), statusColor(code), color)
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeStatusClass(class string, color bool) string {
	switch class {
	case "5xx":
		return paint(class, ansiRed, color)
	case "4xx":
		return paint(class, ansiYellow, color)
	case "3xx":
		return paint(class, ansiCyan, color)
	default:
		return paint(class, ansiGreen, color)
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paint(s, ansiRed, color)
	case ms >= 200:
		return paint(s, ansiYellow, color)
	default:
		return paint(s, ansiGreen, color)
	}
}

func colorizeResult(result string, color bool) string {
	switch result {
	case "ok", "success", "valid", "scheduled", "attempted":
		return paint(result, ansiGreen, color)
	case "client_error", "redirect", "skipped", "invalid_credentials", "indeterminate":
		return paint(result, ansiYellow, color)
	case "server_error", "fail", "failed", "error":
		return paint(result, ansiRed, color)
	default:
		return quoteIfNeeded(result)
	}
}

func paint(s, code string, color bool) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}

func applyDim(s string, color bool) string { return paint(s, ansiDim, color) }

func applyBold(s string, color bool) string { return paint(s, ansiBright, color) }

func stripANSI(s string) string { return ansiRe.ReplaceAllString(s, "") }

// visualLen is the printed width of s in runes, ignoring color codes.
func visualLen(s string) int { return utf8.RuneCountInString(stripANSI(s)) }

// wrapSegments packs segs into lines of at most width columns. Continuation lines start with
// indent. A segment too wide for a line on its own is truncated with an ellipsis.
func wrapSegments(segs []string, sep string, width int, indent string) []string {
	var (
		lines []string
		cur   string
	)
	for _, seg := range segs {
		if cur == "" {
			prefix := ""
			if len(lines) > 0 {
				prefix = indent
			}
			cur = prefix + truncateVisual(seg, width-visualLen(prefix))
			continue
		}
		if visualLen(cur)+visualLen(sep)+visualLen(seg) <= width {
			cur += sep + seg
			continue
		}
		lines = append(lines, cur)
		cur = indent + truncateVisual(seg, width-visualLen(indent))
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func truncateVisual(s string, width int) string {
	if width <= 1 || visualLen(s) <= width {
		return s
	}
	plain := []rune(stripANSI(s))
	return string(plain[:width-1]) + "…"
}
