// Package sweep runs every (reference, codec, bitrate) job of a plan through its
// codec adapter and records each outcome in the metadata file.
package sweep

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/catalog"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/layout"
	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/registry"
	"github.com/himanishpuri/CodecSweep/pkg/models"
)

// DefaultSmokeCount is how many references a smoke run keeps.
const DefaultSmokeCount = 10

// Plan is the input of one sweep.
type Plan struct {
	CodecSet   string
	Entries    []*registry.Entry
	References []models.Reference // Already filtered to Subset, in catalog order
	Subset     string
	Bitrates   []int
	Smoke      bool
	SmokeCount int
	Layout     layout.Planner

	// MetadataPath overrides Layout.MetadataPath().
	MetadataPath string
}

// Validate rejects plans that cannot produce a single job.
func (p Plan) Validate() error {
	var errs []error
	if len(p.Entries) == 0 {
		errs = append(errs, errors.New("no codecs selected"))
	}
	if len(p.Bitrates) == 0 {
		errs = append(errs, errors.New("no bitrates requested"))
	}
	for _, b := range p.Bitrates {
		if b <= 0 {
			errs = append(errs, fmt.Errorf("bitrate %d must be positive", b))
		}
	}
	if p.Layout.Root == "" {
		errs = append(errs, errors.New("output root is required"))
	}
	return errors.Join(errs...)
}

func (p Plan) metadataPath() string {
	if p.MetadataPath != "" {
		return p.MetadataPath
	}
	return p.Layout.MetadataPath()
}

// Jobs enumerates the plan, applying the smoke-test prefix.
func (p Plan) Jobs() []models.Job {
	refs := p.References
	if p.Smoke {
		n := p.SmokeCount
		if n <= 0 {
			n = DefaultSmokeCount
		}
		refs = catalog.Truncate(refs, n)
	}
	jobs := Enumerate(refs, p.Entries, p.Bitrates)
	for i := range jobs {
		jobs[i].Subset = p.Subset
		jobs[i].CodecSet = p.CodecSet
	}
	return jobs
}

// Enumerate builds references x codecs x bitrates, in that nesting order, dropping
// repeated jobs.
func Enumerate(refs []models.Reference, entries []*registry.Entry, bitrates []int) []models.Job {
	seen := make(map[string]bool)
	jobs := make([]models.Job, 0, len(refs)*len(entries)*len(bitrates))
	for _, ref := range refs {
		for _, e := range entries {
			for _, b := range bitrates {
				job := models.Job{Reference: ref, Codec: e.Name, Bitrate: b}
				if seen[job.Key()] {
					continue
				}
				seen[job.Key()] = true
				jobs = append(jobs, job)
			}
		}
	}
	return jobs
}
