package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DumpFile loads raw window dumps from disk into an Image.
//
// A dump is a flat binary file holding the bytes of one window starting
// at a known base. A dump directory holds several such files, each named
// by its base in hex ("90000000.bin").
type DumpFile struct {
	*Image
	Files []string
}

// OpenDump maps a single raw dump at base.
func OpenDump(path string, base uint32) (*DumpFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	img := NewImage()
	img.Map(base, data)
	return &DumpFile{Image: img, Files: []string{path}}, nil
}

// OpenDumpDir maps every <hexbase>.bin file in dir.
func OpenDumpDir(dir string) (*DumpFile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.bin"))
	if err != nil {
		return nil, fmt.Errorf("scan dump dir: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .bin dumps in %s", dir)
	}

	img := NewImage()
	df := &DumpFile{Image: img}
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".bin")
		base, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(name), "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("dump %s: name is not a hex base: %w", path, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read dump %s: %w", path, err)
		}
		img.Map(uint32(base), data)
		df.Files = append(df.Files, path)
	}
	return df, nil
}

// WriteDump saves n bytes starting at base into dir as <hexbase>.bin.
func WriteDump(dir string, m Access, base uint32, n int) (string, error) {
	data, err := m.ReadRange(base, n)
	if err != nil {
		return "", fmt.Errorf("write dump: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%08X.bin", base))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write dump: %w", err)
	}
	return path, nil
}
