package train

import (
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
)

// Logger 是实验日志器：构造时落一条完整超参记录，
// 训练过程中记录逐 epoch 指标与自由文本注记。
//
// 注记的 step 取当前注记历史长度，与 checkpoint 历史对齐，
// 方便回看"第 N 次拟合之后发生了什么"。
type Logger struct {
	log     zerolog.Logger
	name    string
	history []string
}

// NewLogger 创建实验日志器并立即记录超参。out 为 nil 时写控制台。
func NewLogger(name string, hparams map[string]any, out io.Writer) *Logger {
	if out == nil {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(out).With().Timestamp().Str("experiment", name).Logger()

	ev := log.Info()
	keys := make([]string, 0, len(hparams))
	for k := range hparams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev = ev.Interface(k, hparams[k])
	}
	ev.Msg("hyperparameters")

	return &Logger{log: log, name: name}
}

// LogMetrics 记录一个 epoch 的指标。
func (l *Logger) LogMetrics(epoch int, metrics map[string]float64) {
	if l == nil {
		return
	}
	ev := l.log.Info().Int("epoch", epoch)
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev = ev.Float64(k, metrics[k])
	}
	ev.Msg("epoch")
}

// Annotate 记录一条自由文本注记，step 取当前注记历史长度。
func (l *Logger) Annotate(text string) {
	if l == nil {
		return
	}
	l.log.Info().Int("step", len(l.history)).Str("text", text).Msg("annotation")
	l.history = append(l.history, text)
}

// Annotations 返回已记录的注记（只读副本）。
func (l *Logger) Annotations() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.history))
	copy(out, l.history)
	return out
}

// Warnf 记录一条警告。
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.log.Warn().Msgf(format, args...)
}
