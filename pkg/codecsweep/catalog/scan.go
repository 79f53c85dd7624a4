package catalog

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/himanishpuri/CodecSweep/internal/runner"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/audio"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

var audioExts = map[string]bool{".wav": true, ".flac": true}

// Logger is the subset of the logger used while scanning.
type Logger interface {
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Scan probes every wav and flac file under root with ffprobe. Files that fail to
// probe are logged and left out. The result is in lexical path order.
func Scan(ctx context.Context, r runner.Runner, root, dataset string, log Logger) ([]models.Reference, error) {
	var refs []models.Reference
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !audioExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		meta, err := audio.Probe(ctx, r, path)
		if err != nil {
			log.Warnf("Skipping %s: %v", path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		log.Debugf("Probed %s: %d Hz, %d ch, %d bit", rel, meta.SampleRate, meta.Channels, meta.BitDepth)
		refs = append(refs, models.Reference{
			RelPath:    filepath.ToSlash(rel),
			Path:       path,
			Format:     meta.Format,
			Channels:   meta.Channels,
			BitDepth:   meta.BitDepth,
			SampleRate: meta.SampleRate,
			Duration:   meta.DurationSec,
			Dataset:    dataset,
		})
		return nil
	})
	return refs, err
}
