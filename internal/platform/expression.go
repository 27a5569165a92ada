package platform

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var expressionFuncs = template.FuncMap{
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"upper":     strings.ToUpper,
}

// Expression yields a per-capture attribute value. Plain text is a constant;
// template actions are evaluated against the capture.
type Expression struct {
	source string
	tmpl   *template.Template
}

func compileExpression(name, source string) (*Expression, error) {
	tmpl, err := template.New(name).Funcs(expressionFuncs).Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse %s expression: %w", name, err)
	}
	return &Expression{source: source, tmpl: tmpl}, nil
}

// Eval renders the expression for data and trims surrounding space.
func (e *Expression) Eval(data any) (string, error) {
	if e == nil || e.tmpl == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// String returns the expression source.
func (e *Expression) String() string {
	if e == nil {
		return ""
	}
	return e.source
}
