package sweep

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/CodecSweep/pkg/models"
	"github.com/himanishpuri/CodecSweep/pkg/utils"
)

// Report summarizes one sweep run.
type Report struct {
	RunID        string
	MetadataPath string
	Stats        models.SweepStats
	Appended     int // Metadata rows written by this run
	Elapsed      time.Duration
}

func (r *Report) add(res models.JobResult) {
	r.Stats.Attempted++
	if res.Success {
		r.Stats.Succeeded++
		r.Stats.Bytes += utils.FileSize(res.OutputPath)
		return
	}
	r.Stats.Failed++
	r.Stats.ByKind[res.ErrorKind]++
}

// String renders the report for the terminal.
func (r Report) String() string {
	s := r.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s\n", r.RunID, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  planned   %s\n", humanize.Comma(int64(s.Planned)))
	fmt.Fprintf(&b, "  skipped   %s (already done)\n", humanize.Comma(int64(s.Skipped)))
	fmt.Fprintf(&b, "  attempted %s\n", humanize.Comma(int64(s.Attempted)))
	fmt.Fprintf(&b, "  succeeded %s, wrote %s\n", humanize.Comma(int64(s.Succeeded)), humanize.Bytes(uint64(s.Bytes)))
	fmt.Fprintf(&b, "  failed    %s\n", humanize.Comma(int64(s.Failed)))

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "    %-22s %d\n", k, s.ByKind[models.ErrorKind(k)])
	}
	fmt.Fprintf(&b, "  metadata  %s (+%d rows)", r.MetadataPath, r.Appended)
	return b.String()
}
