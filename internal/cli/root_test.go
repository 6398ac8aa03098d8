package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"inspect", "query", "serve", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "table", format.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	allowLocal := serve.Flags().Lookup("allow-local")
	require.NotNil(t, allowLocal)
	assert.Equal(t, "false", allowLocal.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "urlvtab version dev")

	out, err = execute(t, "--format", "json", "version")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v["version"])
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name,score\n1,ann,2.5\n2,bob,3\n"), 0644))
	return path
}

func TestInspect(t *testing.T) {
	path := writeCSV(t)

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "root\n")
	assert.Contains(t, out, " |-- id: int")
	assert.Contains(t, out, " |-- name: string")
	assert.Contains(t, out, " |-- score: float")

	out, err = execute(t, "--format", "json", "inspect", path, "--type", "CSV")
	require.NoError(t, err)
	var res InspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "CSV", res.Format)
	require.Len(t, res.Columns, 3)
	assert.Equal(t, "score", res.Columns[2].Name)
	assert.Equal(t, "float", res.Columns[2].Type)
}

func TestInspect_Errors(t *testing.T) {
	_, err := execute(t, "inspect", writeCSV(t), "--type", "xlsx")
	require.Error(t, err)

	_, err = execute(t, "inspect", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	_, err = execute(t, "inspect")
	require.Error(t, err)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /tmp/from-file\nreader:\n  sample_rows: 5\n"), 0644))
	t.Setenv("URLVTAB_READER_SAMPLE_ROWS", "7")

	cfg, err := loadConfig(&RootOptions{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-file", cfg.DataDir)
	assert.Equal(t, 7, cfg.Reader.SampleRows)

	_, err = loadConfig(&RootOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}
