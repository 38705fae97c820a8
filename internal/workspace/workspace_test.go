package workspace

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestMaterializeFlattensPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := NewBuilder(fs)

	ws, err := builder.Materialize("raw", []FileEntry{
		{Path: "some/deep/dir/train.csv", Data: []byte("a,b\n1,2\n")},
		{Path: "test.csv", Data: []byte("a,b\n3,4\n")},
	}, false)
	require.NoError(t, err)
	defer ws.Cleanup()

	require.Equal(t, "raw", filepath.Base(ws.Dir()))

	data, err := afero.ReadFile(fs, filepath.Join(ws.Dir(), "train.csv"))
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(data))

	exists, err := afero.DirExists(fs, filepath.Join(ws.Dir(), "some"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMaterializePreservesPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := NewBuilder(fs)

	ws, err := builder.Materialize("raw", []FileEntry{
		{Path: "images/cats/1.png", Data: []byte{0x89}},
		{Path: "labels.txt", Data: []byte("cat\n")},
	}, true)
	require.NoError(t, err)
	defer ws.Cleanup()

	data, err := afero.ReadFile(fs, filepath.Join(ws.Dir(), "images", "cats", "1.png"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x89}, data)

	_, err = afero.ReadFile(fs, filepath.Join(ws.Dir(), "labels.txt"))
	require.NoError(t, err)
}

func TestMaterializeNormalizesBackslashes(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := NewBuilder(fs)

	ws, err := builder.Materialize("raw", []FileEntry{
		{Path: `folder\nested\file.txt`, Data: []byte("x")},
	}, true)
	require.NoError(t, err)
	defer ws.Cleanup()

	_, err = afero.ReadFile(fs, filepath.Join(ws.Dir(), "folder", "nested", "file.txt"))
	require.NoError(t, err)
}

func TestMaterializeRejectsEscapingPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := NewBuilder(fs)

	for _, p := range []string{"../evil.txt", "/etc/passwd", "a/../../evil.txt", ".."} {
		_, err := builder.Materialize("raw", []FileEntry{{Path: p, Data: []byte("x")}}, true)
		require.Error(t, err, "path %q must be rejected", p)
	}
}

func TestMaterializeEmptyEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := NewBuilder(fs)

	ws, err := builder.Materialize("vectorized", nil, false)
	require.NoError(t, err)
	defer ws.Cleanup()

	infos, err := afero.ReadDir(fs, ws.Dir())
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestMaterializeLastWriteWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := NewBuilder(fs)

	ws, err := builder.Materialize("raw", []FileEntry{
		{Path: "data.csv", Data: []byte("first")},
		{Path: "data.csv", Data: []byte("second")},
	}, false)
	require.NoError(t, err)
	defer ws.Cleanup()

	data, err := afero.ReadFile(fs, filepath.Join(ws.Dir(), "data.csv"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestCleanupRemovesScratchRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := NewBuilder(fs)

	ws, err := builder.Materialize("raw", []FileEntry{
		{Path: "data.csv", Data: []byte("x")},
	}, false)
	require.NoError(t, err)

	ws.Cleanup()

	exists, err := afero.DirExists(fs, ws.Dir())
	require.NoError(t, err)
	require.False(t, exists)
}
