// Package layout computes where sweep outputs, metadata and scores live.
// Every path is a pure function of the planner fields and its arguments.
package layout

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

// Planner places the artifacts of one codec set over one subset.
type Planner struct {
	Root     string // Output root directory
	CodecSet string // Codec-set name
	Subset   string // Subset tag
	Smoke    bool   // Smoke-test runs get their own directories
}

func (p Planner) suffix() string {
	if p.Smoke {
		return "-test"
	}
	return ""
}

// RunDir is the directory holding every output of one bitrate.
//
//	codecs=<set>-subset=<subset>-bitrate=<kbps>[-test]
func (p Planner) RunDir(bitrate int) string {
	name := fmt.Sprintf("codecs=%s-subset=%s-bitrate=%s%s", p.CodecSet, p.Subset, formatKbps(bitrate), p.suffix())
	return filepath.Join(p.Root, name)
}

// OutputPath is <RunDir>/<reference path without extension>/<codec>.wav.
func (p Planner) OutputPath(bitrate int, refRel, codec string) string {
	refDir := utils.TrimExt(filepath.ToSlash(refRel))
	refDir = strings.TrimLeft(refDir, "/")
	return filepath.Join(p.RunDir(bitrate), filepath.FromSlash(refDir), codec+".wav")
}

func (p Planner) stem() string {
	return fmt.Sprintf("codecs=%s-subset=%s%s.csv", p.CodecSet, p.Subset, p.suffix())
}

// MetadataPath is the append-only job log shared by all bitrates of the set.
func (p Planner) MetadataPath() string {
	return filepath.Join(p.Root, "metadata_"+p.stem())
}

// ScoresPath is where scoring results for MetadataPath go.
func (p Planner) ScoresPath() string {
	return filepath.Join(p.Root, "scores_"+p.stem())
}

// SummaryPath holds per codec and bitrate aggregates of ScoresPath.
func (p Planner) SummaryPath() string {
	return filepath.Join(p.Root, "summary_"+p.stem())
}

// ScoresPathFor derives the scores file name from a metadata file name.
func ScoresPathFor(metadataPath string) string {
	return siblingWithPrefix(metadataPath, "scores_")
}

// SummaryPathFor derives the summary file name from a metadata file name.
func SummaryPathFor(metadataPath string) string {
	return siblingWithPrefix(metadataPath, "summary_")
}

func siblingWithPrefix(metadataPath, prefix string) string {
	dir, base := filepath.Split(metadataPath)
	base = strings.TrimPrefix(base, "metadata_")
	return filepath.Join(dir, prefix+base)
}

// AnchorPath is <root>/anchors/<reference path without extension>/lp<hz>.wav.
func AnchorPath(root, refRel string, cutoffHz int) string {
	refDir := strings.TrimLeft(utils.TrimExt(filepath.ToSlash(refRel)), "/")
	return filepath.Join(root, "anchors", filepath.FromSlash(refDir), fmt.Sprintf("lp%d.wav", cutoffHz))
}

// SpectrogramPath places a PNG next to the audio it renders.
func SpectrogramPath(wavPath string) string {
	return utils.TrimExt(wavPath) + ".png"
}

// formatKbps renders 32000 as "32" and 13200 as "13.2".
func formatKbps(bitrate int) string {
	if bitrate%1000 == 0 {
		return fmt.Sprintf("%d", bitrate/1000)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", float64(bitrate)/1000), "0"), ".")
}
