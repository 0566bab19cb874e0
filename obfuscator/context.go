package obfuscator

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrFrozen is returned when a mapping is requested after the name
	// map has been frozen for the run.
	ErrFrozen = errors.New("name map is frozen")
	// ErrNameCollision is returned when a generated name would alias two
	// distinct identities. The generator retries before this surfaces.
	ErrNameCollision = errors.New("generated name collision")
	// ErrMalformedUnit is returned for a structurally invalid unit; the
	// whole batch aborts rather than renaming it partially.
	ErrMalformedUnit = errors.New("malformed compilation unit")
)

// LogLevel grades a log entry.
type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// LogEntry is one ordered entry of the run log.
type LogEntry struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// Log accumulates ordered entries for the report and mirrors them to a
// structured logger.
type Log struct {
	entries []LogEntry
	slog    *slog.Logger
}

func newLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{slog: logger}
}

func (l *Log) Infof(format string, args ...any) {
	l.add(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Log) Warnf(format string, args ...any) {
	l.add(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Log) Errorf(format string, args ...any) {
	l.add(LevelError, fmt.Sprintf(format, args...))
}

func (l *Log) add(level LogLevel, msg string) {
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg})
	switch level {
	case LevelWarn:
		l.slog.Warn(msg)
	case LevelError:
		l.slog.Error(msg)
	default:
		l.slog.Info(msg)
	}
}

// Entries returns the ordered log entries recorded so far.
func (l *Log) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Statistics counts what the run changed.
type Statistics struct {
	UnitsProcessed     int                `json:"unitsProcessed"`
	RenamedByKind      map[SymbolKind]int `json:"-"`
	StringsEncrypted   int                `json:"stringsEncrypted"`
	CommentsRemoved    int                `json:"commentsRemoved"`
	AttributesStripped int                `json:"attributesStripped"`
	JunkBlocksInjected int                `json:"junkBlocksInjected"`
}

// Renamed returns the total symbols renamed across all kinds.
func (s *Statistics) Renamed() int {
	n := 0
	for _, c := range s.RenamedByKind {
		n += c
	}
	return n
}

func (s *Statistics) countRename(kind SymbolKind) {
	if s.RenamedByKind == nil {
		s.RenamedByKind = make(map[SymbolKind]int)
	}
	s.RenamedByKind[kind]++
}

// NameMap is the run's injective mapping from renamable symbol identity
// to its generated name. It is built during the collection phase and
// frozen before the rewrite phase.
type NameMap struct {
	byID   map[string]string
	used   map[string]bool
	frozen bool
}

// NewNameMap creates an empty name map.
func NewNameMap() *NameMap {
	return &NameMap{byID: make(map[string]string), used: make(map[string]bool)}
}

// Assign records a generated name for an identity. An identity is mapped
// at most once, and no two identities may share a generated name.
func (m *NameMap) Assign(id, name string) error {
	if m.frozen {
		return fmt.Errorf("%w: cannot assign %q", ErrFrozen, id)
	}
	if existing, ok := m.byID[id]; ok {
		return fmt.Errorf("identity %q already mapped to %q", id, existing)
	}
	if m.used[name] {
		return fmt.Errorf("%w: %q", ErrNameCollision, name)
	}
	m.byID[id] = name
	m.used[name] = true
	return nil
}

// Get returns the generated name for an identity.
func (m *NameMap) Get(id string) (string, bool) {
	name, ok := m.byID[id]
	return name, ok
}

// Has reports whether the identity is already mapped.
func (m *NameMap) Has(id string) bool {
	_, ok := m.byID[id]
	return ok
}

// Used reports whether a generated name has been handed out.
func (m *NameMap) Used(name string) bool { return m.used[name] }

// Freeze makes the map read-only for the rest of the run.
func (m *NameMap) Freeze() { m.frozen = true }

// Len returns the number of mapped identities.
func (m *NameMap) Len() int { return len(m.byID) }

// Snapshot returns a copy of the mapping for reporting.
func (m *NameMap) Snapshot() map[string]string {
	out := make(map[string]string, len(m.byID))
	for id, name := range m.byID {
		out[id] = name
	}
	return out
}

// Context is the run-scoped aggregate owning the name generator, the
// name map, statistics, and the log. One Context serves exactly one
// pipeline invocation; it is never shared across runs.
type Context struct {
	Gen   *NameGenerator
	Names *NameMap
	Stats *Statistics
	Log   *Log
}

// NewContext builds the context for one invocation. The logger may be
// nil, in which case entries go to slog.Default.
func NewContext(cfg Config, logger *slog.Logger) *Context {
	mode := ModeSequential
	if cfg.Deterministic {
		mode = ModeDeterministic
	}
	return &Context{
		Gen:   NewNameGenerator(mode, cfg.Seed),
		Names: NewNameMap(),
		Stats: &Statistics{RenamedByKind: make(map[SymbolKind]int)},
		Log:   newLog(logger),
	}
}
