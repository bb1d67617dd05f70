package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/jobctl/internal/models"
)

func TestParseVariableTemplate(t *testing.T) {
	vt, err := ParseVariableTemplate("s_o={{.Dir}}/{{.Stem}}_{{.CorrelationID}}")
	require.NoError(t, err)
	assert.Equal(t, "s_o", vt.Name)
	assert.Equal(t, "{{.Dir}}/{{.Stem}}_{{.CorrelationID}}", vt.Template)

	_, err = ParseVariableTemplate("broken")
	assert.Error(t, err)
}

func TestNewTemplateTransform(t *testing.T) {
	transform, err := NewTemplateTransform([]VariableTemplate{
		{Name: "s_clip", Template: "{{.Stem}}"},
		{Name: "s_import", Template: "file:{{replace .Path `\\` `/`}}"},
		{Name: "s_o", Template: "/out/{{.Stem}}_{{.CorrelationID}}{{.Ext}}"},
		{Name: "s_index", Template: "{{.Index}}-{{lower .Base}}"},
		{Name: "s_dir", Template: "{{.Dir}}"},
	})
	require.NoError(t, err)

	req := models.JobRequest{
		WorkflowID: "wf",
		InputRef:   `D:\media\Clip01.MXF`,
		Variables:  []models.Variable{{Name: "s_project", Data: "p"}},
	}
	item := Item{Index: 7, InputRef: req.InputRef, CorrelationID: "c-1"}

	out, err := transform(context.Background(), item, req)
	require.NoError(t, err)

	assert.Equal(t, []models.Variable{
		{Name: "s_project", Data: "p"},
		{Name: "s_clip", Data: "Clip01"},
		{Name: "s_import", Data: "file:D:/media/Clip01.MXF"},
		{Name: "s_o", Data: "/out/Clip01_c-1.MXF"},
		{Name: "s_index", Data: "7-clip01.mxf"},
		{Name: "s_dir", Data: `D:\media`},
	}, out.Variables)
	assert.Len(t, req.Variables, 1, "input request is not modified")
}

func TestNewTemplateTransform_Errors(t *testing.T) {
	_, err := NewTemplateTransform([]VariableTemplate{{Name: "", Template: "x"}})
	assert.ErrorIs(t, err, models.ErrVariableNameRequired)

	_, err = NewTemplateTransform([]VariableTemplate{{Name: "s_bad", Template: "{{.Stem"}})
	assert.Error(t, err)

	transform, err := NewTemplateTransform([]VariableTemplate{{Name: "s_missing", Template: "{{.Nope}}"}})
	require.NoError(t, err)
	_, err = transform(context.Background(), Item{InputRef: "a.mov"}, models.JobRequest{})
	assert.Error(t, err)
}

func TestDirOf(t *testing.T) {
	assert.Equal(t, "/media", dirOf("/media/a.mov"))
	assert.Equal(t, "/", dirOf("/a.mov"))
	assert.Equal(t, "", dirOf("a.mov"))
	assert.Equal(t, `\\server\share`, dirOf(`\\server\share\a.mov`))
}
