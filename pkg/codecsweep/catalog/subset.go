package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/himanishpuri/CodecSweep/pkg/models"
)

const SubsetAll = "all"

// builtinSubsets filter references by sample rate.
var builtinSubsets = map[string][]int{
	"fullband":      {44100, 48000},
	"superwideband": {32000},
	"wideband":      {16000},
	"narrowband":    {8000},
}

// Subsets resolves subset names to sample-rate filters. Custom definitions
// override built-ins of the same name.
type Subsets map[string][]int

// NewSubsets merges custom subset definitions over the built-ins.
func NewSubsets(custom map[string][]int) Subsets {
	s := make(Subsets, len(builtinSubsets)+len(custom))
	for k, v := range builtinSubsets {
		s[k] = v
	}
	for k, v := range custom {
		s[strings.ToLower(k)] = v
	}
	return s
}

// Names lists every known subset including "all".
func (s Subsets) Names() []string {
	names := []string{SubsetAll}
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names[1:])
	return names
}

// Filter keeps references in the named subset, preserving catalog order.
func (s Subsets) Filter(refs []models.Reference, name string) ([]models.Reference, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == SubsetAll {
		return refs, nil
	}
	rates, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("unknown subset %q (known: %s)", name, strings.Join(s.Names(), ", "))
	}
	var out []models.Reference
	for _, r := range refs {
		if slices.Contains(rates, r.SampleRate) {
			out = append(out, r)
		}
	}
	return out, nil
}
