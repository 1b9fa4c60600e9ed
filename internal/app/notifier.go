package app

import (
	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/ggonzalez94/dex-cli/internal/lifecycle"
	"go.uber.org/zap"
)

// logNotifier reports lifecycle progress as structured log lines on stderr.
// The final outcome still reaches the caller through the envelope.
type logNotifier struct {
	log *zap.Logger
}

func newLogNotifier(log *zap.Logger) *logNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &logNotifier{log: log.Named("lifecycle")}
}

func (n *logNotifier) SetLoading(loading bool) {
	n.log.Debug("loading", zap.Bool("loading", loading))
}

func (n *logNotifier) Status(stage lifecycle.Stage, message string) {
	n.log.Info("stage", zap.String("stage", string(stage)), zap.String("message", message))
}

func (n *logNotifier) Success(message string) {
	n.log.Info("success", zap.String("message", message))
}

func (n *logNotifier) Failure(err error) {
	fields := []zap.Field{zap.String("message", clierr.UserMessage(err))}
	if typed, ok := clierr.As(err); ok {
		fields = append(fields, zap.String("type", clierr.TypeOf(typed.Code)))
	}
	n.log.Warn("failure", fields...)
}

var _ lifecycle.Notifier = (*logNotifier)(nil)
