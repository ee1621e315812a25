package observability

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes zerolog with sane defaults and wires every log
// line, regardless of sink, through the same field-redaction pass used for
// outbound/inbound provider payloads (redact.go). Conversation utterances
// and tool arguments routinely reach log statements across the orchestrator,
// router, and provider adapters (§4's components all log decision inputs),
// so the redaction has to sit at the sink rather than be remembered at each
// call site. If logPath is non-empty, logs are written only to that file
// (append mode), not to stdout; if opening the file fails, logs fall back to stdout and an
// error is printed to stderr. serviceName is attached to every line so
// turncore's own logs are distinguishable from the providers/stores it logs
// about.
func InitLogger(logPath, level, serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			// When a log file is configured, write only to the file to avoid
			// interfering with interactive UIs (e.g., TUI) that use stdout.
			w = f
		} else {
			// best-effort; continue with stdout
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}

	logCtx := log.Output(redactingWriter{w}).With().Timestamp()
	if serviceName != "" {
		logCtx = logCtx.Str("service", serviceName)
	}
	log.Logger = logCtx.Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)
	// Redirect the standard library logger so ALL logs are captured.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// redactingWriter scrubs sensitive fields (api keys, tokens, passwords) out
// of each JSON log line before it reaches the underlying sink. zerolog emits
// one JSON object per Write call, which is exactly RedactJSON's input shape.
type redactingWriter struct {
	w io.Writer
}

func (r redactingWriter) Write(p []byte) (int, error) {
	trimmed := strings.TrimRight(string(p), "\n")
	redacted := RedactJSON(json.RawMessage(trimmed))
	out := append(append([]byte{}, redacted...), '\n')
	if _, err := r.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
