// Package catalog reads the reference inventory a sweep runs over.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// Columns of the catalog file, in the order Write emits them.
var Columns = []string{"path", "format", "channels", "bit_depth", "sample_rate", "duration", "dataset"}

var requiredColumns = []string{"path", "sample_rate"}

// Read loads a catalog CSV. Relative paths resolve against root, which also
// anchors each reference's relative path used for output layout.
func Read(path, root string) ([]models.Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	refs, err := Parse(f, root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return refs, nil
}

// Parse reads catalog rows from r. Column order is free; a header row is required.
func Parse(r io.Reader, root string) ([]models.Reference, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("catalog header lacks %q column", c)
		}
	}

	var refs []models.Reference
	seen := make(map[string]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string {
			if i, ok := idx[col]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		ref, err := parseRow(get, root)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if first, ok := seen[ref.RelPath]; ok {
			return nil, fmt.Errorf("line %d: %s duplicates line %d", line, ref.RelPath, first)
		}
		seen[ref.RelPath] = line
		refs = append(refs, ref)
	}
	return refs, nil
}

func parseRow(get func(string) string, root string) (models.Reference, error) {
	raw := get("path")
	if raw == "" {
		return models.Reference{}, errors.New("empty path")
	}
	sr, err := strconv.Atoi(get("sample_rate"))
	if err != nil || sr <= 0 {
		return models.Reference{}, fmt.Errorf("bad sample_rate %q", get("sample_rate"))
	}
	ref := models.Reference{
		Format:     get("format"),
		SampleRate: sr,
		Dataset:    get("dataset"),
	}
	ref.Channels, _ = strconv.Atoi(get("channels"))
	ref.BitDepth, _ = strconv.Atoi(get("bit_depth"))
	ref.Duration, _ = strconv.ParseFloat(get("duration"), 64)
	ref.Path, ref.RelPath, err = resolve(raw, root)
	if err != nil {
		return models.Reference{}, err
	}
	return ref, nil
}

// resolve returns the on-disk path and the slash-separated name that places the
// reference in the output tree. Absolute paths outside root keep their whole path
// as the name, so distinct files never share one.
func resolve(raw, root string) (string, string, error) {
	p := filepath.Clean(filepath.FromSlash(raw))
	if !filepath.IsAbs(p) {
		if escapes(p) {
			return "", "", fmt.Errorf("path %q leaves the reference root", raw)
		}
		if p == "." {
			return "", "", fmt.Errorf("path %q names no file", raw)
		}
		return filepath.Join(root, p), filepath.ToSlash(p), nil
	}
	if root != "" {
		if rel, err := filepath.Rel(root, p); err == nil && !escapes(rel) && rel != "." {
			return p, filepath.ToSlash(rel), nil
		}
	}
	rel := strings.TrimLeft(strings.TrimPrefix(p, filepath.VolumeName(p)), `/\`)
	if rel == "" {
		return "", "", fmt.Errorf("path %q names no file", raw)
	}
	return p, filepath.ToSlash(rel), nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Write emits refs as a catalog CSV at path.
func Write(path string, refs []models.Reference) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write(Columns)
	for _, r := range refs {
		w.Write([]string{
			r.RelPath,
			r.Format,
			strconv.Itoa(r.Channels),
			strconv.Itoa(r.BitDepth),
			strconv.Itoa(r.SampleRate),
			strconv.FormatFloat(r.Duration, 'f', -1, 64),
			r.Dataset,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Truncate keeps the first n references in catalog order. n <= 0 keeps all.
func Truncate(refs []models.Reference, n int) []models.Reference {
	if n <= 0 || n >= len(refs) {
		return refs
	}
	return refs[:n]
}
