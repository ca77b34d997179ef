package templates

import (
	"bytes"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplates_Load(t *testing.T) {
	t.Parallel()

	for _, lang := range []string{"ts", "js"} {
		tmpl, err := Templates(lang)
		require.NoError(t, err)

		files, err := TemplateFiles(lang)
		require.NoError(t, err)
		for _, name := range files {
			assert.NotNil(t, tmpl.Lookup(name), "template %s should be loaded", name)
		}
	}
}

func TestTemplateFiles_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := TemplateFiles("go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")

	_, err = Templates("rust")
	require.Error(t, err)
}

func TestTemplates_RenderManifest(t *testing.T) {
	t.Parallel()

	tmpl, err := Templates("ts")
	require.NoError(t, err)

	data := ExtensionData{
		Name:        "my-tool",
		Title:       "My Tool",
		Description: `Says "hi"`,
		Net:         []string{"api.github.com", "*.example.com:443"},
		Env:         []string{"HOME"},
	}

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "LanternExt.toml", data))

	var doc struct {
		Permissions map[string][]string `toml:"permissions"`
		Name        string              `toml:"name"`
		Description string              `toml:"description"`
		EntryPoint  string              `toml:"entry_point"`
	}
	require.NoError(t, toml.Unmarshal(buf.Bytes(), &doc), buf.String())
	assert.Equal(t, "my-tool", doc.Name)
	assert.Equal(t, `Says "hi"`, doc.Description)
	assert.Equal(t, "main.ts", doc.EntryPoint)
	assert.Equal(t, []string{"api.github.com", "*.example.com:443"}, doc.Permissions["net"])
	assert.Empty(t, doc.Permissions["read"])
}

func TestTemplates_RenderEntry(t *testing.T) {
	t.Parallel()

	tmpl, err := Templates("js")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "main.js", ExtensionData{Name: "my-tool", Title: "My Tool"}))
	assert.Contains(t, buf.String(), `from "lantern"`)
	assert.Contains(t, buf.String(), "usage: lantern my-tool")
	assert.Contains(t, buf.String(), "My Tool running on lantern ${info.version}")
}

func TestTomlList(t *testing.T) {
	t.Parallel()

	out, err := tomlList(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	out, err = tomlList([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, `["a", "b"]`, out)
}
