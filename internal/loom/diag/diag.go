// Package diag carries loom's error and warning taxonomy (spec.md §7).
//
// Following tqerrors' split between a technical Error() string and a
// human-facing message, every fatal condition raised by a generator pass is
// a *Error wrapping an optional cause, and every non-fatal condition is a
// Warning delivered through an injected Sink rather than a global logger
// (spec.md §9, "Warning sink").
package diag

import (
	"fmt"

	"github.com/dekarrin/rosed"
	"github.com/google/uuid"
)

// Position is a location in a grammar source file. It is the zero value,
// {"", 0, 0}, when the origin of a diagnostic isn't a source file (e.g. a
// grammar assembled directly via the ast package's builder API).
type Position struct {
	File string
	Line int
	Col  int
}

// Known reports whether the position carries real file/line/col info.
func (p Position) Known() bool {
	return p.File != "" || p.Line != 0 || p.Col != 0
}

// String renders "file line:col", matching spec.md §6's diagnostic format.
func (p Position) String() string {
	if !p.Known() {
		return ""
	}
	return fmt.Sprintf("%s %d:%d", p.File, p.Line, p.Col)
}

// Stage identifies which generator pass raised a diagnostic.
type Stage string

const (
	StageSurface   Stage = "surface"   // grammar-file lexing/parsing
	StageStatic    Stage = "static"    // normalize-time validation
	StageAutomaton Stage = "automaton" // LR(1)/LALR construction
	StageTokenizer Stage = "tokenizer" // NFA/DFA construction
)

// Error is a fatal diagnostic. A single Error aborts the whole build
// (spec.md §7, "Propagation policy").
type Error struct {
	Stage   Stage
	Pos     Position
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Pos.Known() {
		return fmt.Sprintf("%s (%s)", e.Message, e.Pos)
	}
	return e.Message
}

// Unwrap gives the error e wraps, if any.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New builds a fatal Error with no known position.
func New(stage Stage, format string, a ...interface{}) *Error {
	return &Error{Stage: stage, Message: fmt.Sprintf(format, a...)}
}

// At builds a fatal Error at a known position.
func At(stage Stage, pos Position, format string, a ...interface{}) *Error {
	return &Error{Stage: stage, Pos: pos, Message: fmt.Sprintf(format, a...)}
}

// Wrap builds a fatal Error at a known position that wraps an underlying
// cause, following the WrapInterpreter pattern in tqerrors.
func Wrap(stage Stage, pos Position, cause error, format string, a ...interface{}) *Error {
	return &Error{Stage: stage, Pos: pos, Message: fmt.Sprintf(format, a...), Wrapped: cause}
}

// Warning is a non-fatal diagnostic. Per spec.md §7, warnings always carry a
// position.
type Warning struct {
	Stage   Stage
	Pos     Position
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s (%s)", w.Message, w.Pos)
}

// Sink receives warnings as the build proceeds. It is a function-typed
// dependency rather than a global (spec.md §9); passing nil to functions
// that accept a Sink is equivalent to passing DefaultSink.
type Sink func(Warning)

// DefaultSink prints the warning to the rosed-wrapped width the way the
// teacher's in-game text formatter wraps long descriptive strings, so a
// conflict's item text and lookahead don't scroll off a terminal unreadably.
func DefaultSink(w Warning) {
	wrapped := rosed.Edit(w.String()).Wrap(100).String()
	fmt.Println(wrapped)
}

// Session tags a single Build invocation so diagnostics emitted across a
// build (and any tooling aggregating logs from many builds) can be
// correlated back to one run.
type Session struct {
	ID uuid.UUID
}

// NewSession mints a new build session identity.
func NewSession() Session {
	return Session{ID: uuid.New()}
}

// Collector accumulates warnings emitted during a build in addition to
// forwarding them to the configured Sink, so callers that want the full list
// (e.g. the CLI's end-of-build summary) don't need to re-implement a sink
// that appends to a slice.
type Collector struct {
	Session  Session
	sink     Sink
	Warnings []Warning
}

// NewCollector creates a Collector. A nil sink is replaced with DefaultSink.
func NewCollector(sink Sink) *Collector {
	if sink == nil {
		sink = DefaultSink
	}
	return &Collector{Session: NewSession(), sink: sink}
}

// Warn records w and forwards it to the underlying sink.
func (c *Collector) Warn(w Warning) {
	c.Warnings = append(c.Warnings, w)
	c.sink(w)
}
