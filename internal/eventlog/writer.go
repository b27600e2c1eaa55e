package eventlog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is one structured key/value attached to an event.
type Field = zap.Field

// Log appends events to one or more sinks as JSON lines.
type Log struct {
	z       *zap.Logger
	closer  io.Closer
	mirrors []*mirrorSink
}

type options struct {
	clock     zapcore.Clock
	mirrors   []zapcore.WriteSyncer
	errOutput zapcore.WriteSyncer
}

// Option configures a Log.
type Option func(*options)

// WithClock overrides the timestamp source.
func WithClock(c zapcore.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMirror copies every encoded line to an additional sink.
// Each Write call receives exactly one complete line. After the first failed
// Write the mirror receives nothing more, so it always holds a prefix of the
// log; see MirrorErr.
func WithMirror(ws zapcore.WriteSyncer) Option {
	return func(o *options) { o.mirrors = append(o.mirrors, ws) }
}

// WithErrorOutput sets where write failures are reported as they happen.
// Defaults to stderr.
func WithErrorOutput(ws zapcore.WriteSyncer) Option {
	return func(o *options) { o.errOutput = ws }
}

// mirrorSink latches the first write error of a mirror. Only that failure
// reaches the error output; later lines are dropped quietly.
type mirrorSink struct {
	ws zapcore.WriteSyncer

	mu  sync.Mutex
	err error
}

func (m *mirrorSink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return len(p), nil
	}
	n, err := m.ws.Write(p)
	if err != nil {
		m.err = errors.Wrap(err, "mirror write")
		return n, m.err
	}
	return n, nil
}

func (m *mirrorSink) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil
	}
	return m.ws.Sync()
}

func (m *mirrorSink) failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// EncoderConfig is the line format: "event" carries the kind, "timestamp"
// is RFC 3339 in UTC, "logger" names the tool that wrote the line.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     encodeUTC,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

func encodeUTC(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339Nano))
}

// New returns a Log writing to w under the given logger name.
func New(w io.Writer, name string, opts ...Option) *Log {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Log{}
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(w)}
	for _, ws := range o.mirrors {
		m := &mirrorSink{ws: ws}
		l.mirrors = append(l.mirrors, m)
		sinks = append(sinks, m)
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(EncoderConfig()),
		zap.CombineWriteSyncers(sinks...),
		zapcore.DebugLevel,
	)

	var zopts []zap.Option
	if o.clock != nil {
		zopts = append(zopts, zap.WithClock(o.clock))
	}
	if o.errOutput != nil {
		zopts = append(zopts, zap.ErrorOutput(o.errOutput))
	}
	l.z = zap.New(core, zopts...).Named(name)
	return l
}

// OpenFile opens path for appending (creating it if needed) and returns a
// Log writing to it. A prior run's log may be reused as the output log.
func OpenFile(path, name string, opts ...Option) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open event log")
	}
	l := New(f, name, opts...)
	l.closer = f
	return l, nil
}

// Nop returns a Log that discards everything.
func Nop() *Log {
	return &Log{z: zap.NewNop()}
}

// Info records a successful or neutral event.
func (l *Log) Info(kind Kind, fields ...Field) {
	l.z.Info(string(kind), fields...)
}

// Warn records a skip.
func (l *Log) Warn(kind Kind, fields ...Field) {
	l.z.Warn(string(kind), fields...)
}

// Error records a failed or omitted row.
func (l *Log) Error(kind Kind, fields ...Field) {
	l.z.Error(string(kind), fields...)
}

// MirrorErr returns the first write failure of any mirror, or nil. A
// failed mirror is missing every line from that point on.
func (l *Log) MirrorErr() error {
	for _, m := range l.mirrors {
		if err := m.failure(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying file, if any.
func (l *Log) Close() error {
	_ = l.z.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Added describes one instance appended to a parent record.
type Added struct {
	TempID      string `json:"temp_id"`
	ContainerID int    `json:"container_id"`
}

// Constructors for the fields the log schema defines.
func RunID(id string) Field { return zap.String("run_id", id) }
func TempID(id string) Field { return zap.String("temp_id", id) }
func ID(id int) Field { return zap.Int("id", id) }
func AOID(id int) Field { return zap.Int("ao_id", id) }
func RecordURI(uri string) Field { return zap.String("record_uri", uri) }
func URI(uri string) Field { return zap.String("uri", uri) }
func EmptyFields(f []string) Field { return zap.Strings("empty_fields", f) }
func DuplicateFields(f []string) Field { return zap.Strings("duplicate_fields", f) }

// String and Int attach arbitrary scalar fields.
func String(key, val string) Field { return zap.String(key, val) }
func Int(key string, val int) Field { return zap.Int(key, val) }

// Result echoes a remote error body or message.
func Result(v any) Field {
	if err, ok := v.(error); ok {
		return zap.String("result", err.Error())
	}
	return zap.Reflect("result", v)
}

// Data attaches the source row of an event.
func Data(v any) Field { return zap.Reflect("data", v) }

// InstancesAdded lists instances appended to a parent.
func InstancesAdded(added []Added) Field {
	if added == nil {
		added = []Added{}
	}
	return zap.Reflect("instances_added", added)
}

// Reflect attaches any JSON-encodable value.
func Reflect(key string, v any) Field { return zap.Reflect(key, v) }

// scalar is satisfied by normalized spreadsheet values.
type scalar interface {
	IsInt() bool
	Int() (int, bool)
	String() string
}

// Value attaches a normalized cell, keeping integers numeric.
func Value(key string, v scalar) Field {
	if v.IsInt() {
		n, _ := v.Int()
		return zap.Int(key, n)
	}
	return zap.String(key, v.String())
}
