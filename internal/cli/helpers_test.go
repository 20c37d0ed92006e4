package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/memory"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/testutil"
)

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// defaultSource returns the text of the default table.
func defaultSource(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "config", config.DefaultName))
	require.NoError(t, err)
	return string(data)
}

// writeWorldDump lays two leads out over the default table and saves every
// mapped region into a fresh dump directory.
func writeWorldDump(t *testing.T) string {
	t.Helper()
	w := testutil.NewWorld(t)
	w.Place(model.SlotP1C1, 0x9246B9C0, testutil.Healthy(12))
	w.Place(model.SlotP2C1, 0x92500000, testutil.Healthy(13))
	return saveImage(t, w.Image())
}

func saveImage(t *testing.T, img *memory.Image) string {
	t.Helper()
	dir := t.TempDir()
	for _, r := range img.Regions() {
		_, err := memory.WriteDump(dir, img, r[0], int(r[1]))
		require.NoError(t, err)
	}
	return dir
}
