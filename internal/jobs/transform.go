package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jmylchreest/jobctl/internal/models"
)

// VariableTemplate is a variable whose value is rendered per item.
type VariableTemplate struct {
	Name     string
	Template string
}

// ParseVariableTemplate parses "NAME=TEMPLATE".
func ParseVariableTemplate(s string) (VariableTemplate, error) {
	v, err := models.ParseVariable(s)
	if err != nil {
		return VariableTemplate{}, err
	}
	return VariableTemplate{Name: v.Name, Template: v.Data}, nil
}

// TemplateData is the data available to variable templates.
type TemplateData struct {
	// Path is the input reference as given.
	Path string
	// Base is the last path element.
	Base string
	// Stem is Base without its extension.
	Stem string
	// Ext is the extension of Base including the dot.
	Ext string
	// Dir is the directory of Path.
	Dir           string
	Index         int
	CorrelationID string
}

func newTemplateData(item Item) TemplateData {
	path := item.InputRef
	// Windows-style inputs are common on the engine side.
	slashed := strings.ReplaceAll(path, `\`, "/")
	base := filepath.Base(slashed)
	ext := filepath.Ext(base)
	return TemplateData{
		Path:          path,
		Base:          base,
		Stem:          strings.TrimSuffix(base, ext),
		Ext:           ext,
		Dir:           dirOf(path),
		Index:         item.Index,
		CorrelationID: item.CorrelationID,
	}
}

// dirOf returns everything before the last path separator, keeping the
// input's own separator style.
func dirOf(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	switch {
	case idx < 0:
		return ""
	case idx == 0:
		return path[:1]
	default:
		return path[:idx]
	}
}

var templateFuncs = template.FuncMap{
	"lower":      strings.ToLower,
	"upper":      strings.ToUpper,
	"replace":    strings.ReplaceAll,
	"trimSuffix": strings.TrimSuffix,
	"trimPrefix": strings.TrimPrefix,
	"join":       filepath.Join,
}

// NewTemplateTransform compiles templates into an ItemTransform that appends
// one rendered variable per template to each request.
func NewTemplateTransform(templates []VariableTemplate) (ItemTransform, error) {
	type compiled struct {
		name string
		tmpl *template.Template
	}

	parsed := make([]compiled, 0, len(templates))
	for _, vt := range templates {
		if vt.Name == "" {
			return nil, models.ErrVariableNameRequired
		}
		tmpl, err := template.New(vt.Name).
			Funcs(templateFuncs).
			Option("missingkey=error").
			Parse(vt.Template)
		if err != nil {
			return nil, fmt.Errorf("parsing template for %s: %w", vt.Name, err)
		}
		parsed = append(parsed, compiled{name: vt.Name, tmpl: tmpl})
	}

	return func(_ context.Context, item Item, req models.JobRequest) (models.JobRequest, error) {
		data := newTemplateData(item)
		vars := make([]models.Variable, 0, len(parsed))
		for _, c := range parsed {
			var sb strings.Builder
			if err := c.tmpl.Execute(&sb, data); err != nil {
				return req, fmt.Errorf("rendering %s: %w", c.name, err)
			}
			vars = append(vars, models.Variable{Name: c.name, Data: sb.String()})
		}
		return req.WithAppendedVariables(vars), nil
	}, nil
}
