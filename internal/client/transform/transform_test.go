package transform

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/openmined/appsync/internal/client/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTransform string

func (s staticTransform) Render(context.Context, string) (string, error) {
	return string(s), nil
}

func TestPassthrough(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/src/widget/Hello/script.js", []byte("gs.info(1);"), 0o644))

	out, err := NewPassthrough(fs).Render(context.Background(), "/p/src/widget/Hello/script.js")
	require.NoError(t, err)
	assert.Equal(t, "gs.info(1);", out)

	_, err = NewPassthrough(fs).Render(context.Background(), "/p/missing.js")
	assert.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := NewRegistry("/p", fs, nil)
	require.NoError(t, err)

	r.Add("src/**/*.ts", staticTransform("ts"))
	r.Add("src/sp_widget/**", staticTransform("widget"))

	assert.Equal(t, staticTransform("ts"), r.Lookup("/p/src/sp_widget/Card/script.ts"))
	assert.Equal(t, staticTransform("widget"), r.Lookup("/p/src/sp_widget/Card/template.html"))
	assert.IsType(t, &Passthrough{}, r.Lookup("/p/src/sys_script_include/Util/script.js"))

	out, err := r.Render(context.Background(), "/p/src/a/b/c.ts")
	require.NoError(t, err)
	assert.Equal(t, "ts", out)
}

func TestNewRegistryValidatesRules(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := NewRegistry("/p", fs, []config.Rule{{Match: "src/[", Command: []string{"cat"}}})
	assert.Error(t, err)

	_, err = NewRegistry("/p", fs, []config.Rule{{Match: "**/*.ts"}})
	assert.ErrorIs(t, err, ErrEmptyCommand)

	r, err := NewRegistry("/p", fs, []config.Rule{{Match: "**/*.ts", Command: []string{"cat"}}})
	require.NoError(t, err)
	assert.IsType(t, &Command{}, r.Lookup("/p/src/x/y/z.ts"))
}

func TestCommand(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "script.ts")
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), path, []byte("let x = 1;"), 0o644))

	out, err := (&Command{Args: []string{"cat"}, Dir: dir}).Render(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "let x = 1;", out)

	_, err = (&Command{Args: []string{"cat"}, Dir: dir}).Render(context.Background(), filepath.Join(dir, "missing.ts"))
	assert.Error(t, err)

	_, err = (&Command{}).Render(context.Background(), path)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}
