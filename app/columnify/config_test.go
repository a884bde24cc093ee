package columnify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestNewConfigFromPath(t *testing.T) {
	path := writeTempFile(t, "schema.yaml", `
columns:
  - name: id
    type: int64
    adaptive: true
  - name: label
    type: string
    dictionary: true
  - name: price
    type: decimal128
    precision: 10
    scale: 2
`)

	cfg, err := newConfigFromPath(path)
	require.NoError(t, err)
	require.Len(t, cfg.Columns, 3)
	require.True(t, cfg.Columns[0].Adaptive)
	require.True(t, cfg.Columns[1].Dictionary)
	require.Equal(t, int32(2), cfg.Columns[2].Scale)
}

func TestConfigValidation(t *testing.T) {
	type testCase struct {
		name    string
		content string
	}

	tcs := []testCase{
		{
			name:    "no columns",
			content: `columns: []`,
		},
		{
			name: "missing name",
			content: `
columns:
  - type: int64
`,
		},
		{
			name: "duplicate name",
			content: `
columns:
  - name: id
    type: int64
  - name: id
    type: string
`,
		},
		{
			name: "missing type",
			content: `
columns:
  - name: id
`,
		},
		{
			name: "decimal without precision",
			content: `
columns:
  - name: price
    type: decimal128
`,
		},
	}

	for _, tc := range tcs {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			path := writeTempFile(t, "schema.yaml", tc.content)

			_, err := newConfigFromPath(path)
			require.Error(t, err)
		})
	}
}
