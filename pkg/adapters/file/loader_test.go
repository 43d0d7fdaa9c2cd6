package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/ports"
)

var _ ports.TemplateLoader = (*file.Loader)(nil)

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("review.yaml", "name: review")
	write("plan.json", `{"name": "plan"}`)
	write("notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0755))

	loader := file.NewLoader(dir)

	names, err := loader.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"plan", "review"}, names)

	data, err := loader.Load("review")
	require.NoError(t, err)
	assert.Equal(t, "name: review", string(data))

	data, err = loader.Load("plan.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "plan")

	_, err = loader.Load("missing")
	assert.Error(t, err)
	_, err = loader.Load("../review")
	assert.Error(t, err)
}
