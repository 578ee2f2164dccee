package security

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxResultLength = 1000
	redactedValue   = "***"
)

// Severity tags a security event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var sensitiveKeys = []string{"password", "token", "secret", "key", "credential"}

// AuditConfig controls the audit sink.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// User is recorded on every entry that does not name its own caller.
	User string
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:    true,
		Path:       "logs/audit.log",
		MaxSizeMB:  100, // megabytes
		MaxBackups: 10,
		MaxAgeDays: 30, // days
		User:       "agent",
	}
}

// AuditRecord is one tool invocation to be recorded.
type AuditRecord struct {
	SessionID string
	User      string
	Tool      string
	Arguments map[string]any
	Result    string
	Success   bool
}

// AuditLogger appends newline-delimited JSON records to a rotated file.
// Writes are serialized, so concurrent sessions may share one logger.
type AuditLogger struct {
	cfg     AuditConfig
	sink    *zap.Logger
	rotator io.Closer
	log     *zap.Logger
}

// NewAuditLogger opens the audit sink. A disabled config yields a logger
// whose writes are dropped.
func NewAuditLogger(cfg AuditConfig, log *zap.Logger) (*AuditLogger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.User == "" {
		cfg.User = "agent"
	}
	if !cfg.Enabled {
		return &AuditLogger{cfg: cfg, sink: zap.NewNop(), log: log}, nil
	}
	if cfg.Path == "" {
		return nil, errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	// Level and message keys are left empty so each line carries only the record fields.
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     utcTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(rotator)),
		zapcore.InfoLevel,
	)

	return &AuditLogger{
		cfg:     cfg,
		sink:    zap.New(core),
		rotator: rotator,
		log:     log,
	}, nil
}

func utcTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339Nano))
}

// Log records a tool invocation.
func (a *AuditLogger) Log(rec AuditRecord) {
	user := rec.User
	if user == "" {
		user = a.cfg.User
	}
	args := SanitizeArguments(rec.Arguments)

	fields := []zap.Field{
		zap.String("user", user),
		zap.String("tool", rec.Tool),
		zap.Any("arguments", args),
		zap.Bool("success", rec.Success),
	}
	if rec.SessionID != "" {
		fields = append(fields, zap.String("session_id", rec.SessionID))
	}
	if rec.Result != "" {
		fields = append(fields, zap.String("result", truncate(rec.Result, maxResultLength)))
	}
	a.sink.Info("", fields...)

	if rec.Success {
		a.log.Info("audit", zap.String("user", user), zap.String("tool", rec.Tool), zap.Any("arguments", args))
	} else {
		a.log.Warn("audit: tool call failed", zap.String("user", user), zap.String("tool", rec.Tool), zap.Any("arguments", args))
	}
}

// LogSecurityEvent records a rejection or other security-relevant event.
func (a *AuditLogger) LogSecurityEvent(eventType string, severity Severity, details map[string]any) {
	a.sink.Info("",
		zap.String("type", "security_event"),
		zap.String("event_type", eventType),
		zap.String("severity", string(severity)),
		zap.Any("details", details),
	)

	fields := []zap.Field{zap.String("event_type", eventType), zap.Any("details", details)}
	switch severity {
	case SeverityError:
		a.log.Error("security event", fields...)
	case SeverityWarning:
		a.log.Warn("security event", fields...)
	default:
		a.log.Info("security event", fields...)
	}
}

// Recent returns up to n of the newest records in the current audit file.
// Lines that do not decode are skipped.
func (a *AuditLogger) Recent(n int) ([]map[string]any, error) {
	if !a.cfg.Enabled || n <= 0 {
		return nil, nil
	}
	return ReadRecent(a.cfg.Path, n)
}

// ReadRecent tails an audit file without opening it for writing.
func ReadRecent(path string, n int) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	tail := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(tail) == n {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	records := make([]map[string]any, 0, len(tail))
	for _, line := range tail {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close flushes and closes the audit file.
func (a *AuditLogger) Close() error {
	_ = a.sink.Sync()
	if a.rotator != nil {
		return a.rotator.Close()
	}
	return nil
}

// SanitizeArguments masks the value of every non-empty argument whose key
// mentions a credential. The input map is not modified.
func SanitizeArguments(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) && !isEmptyValue(v) {
			out[k] = redactedValue
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	i := 0
	for count := 0; i < len(s); count++ {
		if count >= n {
			return s[:i] + "... (truncated)"
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s
}
