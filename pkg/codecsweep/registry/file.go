package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/CodecSweep/pkg/codecsweep/codec"
)

// SetFile is the on-disk codec-set document.
//
//	name: speech
//	codecs:
//	  - name: evs
//	    kind: evs
//	    params: {bin_dir: /opt/evs, framing: g192}
//	    bitrates: [13200, 24400]
//	    policy: nearest
//	subsets:
//	  telephony: [8000, 16000]
type SetFile struct {
	Name    string           `yaml:"name"`
	Codecs  []CodecConfig    `yaml:"codecs"`
	Subsets map[string][]int `yaml:"subsets"`
}

// CodecConfig is one codec entry of a set file.
type CodecConfig struct {
	Name     string       `yaml:"name"`
	Kind     string       `yaml:"kind"`
	Params   codec.Params `yaml:"params"`
	Bitrates []int        `yaml:"bitrates"`
	Range    *struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"bitrate_range"`
	Policy string `yaml:"policy"`
}

// bitrateSpec overlays the entry's declared bitrates and policy on the kind's defaults.
func (c CodecConfig) bitrateSpec(def codec.BitrateSpec) (codec.BitrateSpec, error) {
	spec := def
	if len(c.Bitrates) > 0 && c.Range != nil {
		return spec, fmt.Errorf("bitrates and bitrate_range are mutually exclusive")
	}
	if len(c.Bitrates) > 0 {
		spec = codec.BitrateSpec{Allowed: c.Bitrates}
	}
	if c.Range != nil {
		spec = codec.BitrateSpec{Min: c.Range.Min, Max: c.Range.Max}
	}
	policy, err := codec.ParsePolicy(c.Policy)
	if err != nil {
		return spec, err
	}
	if c.Policy != "" || spec.Policy == "" {
		spec.Policy = policy
	}
	return spec, spec.Validate()
}

// ParseSetFile decodes a codec-set document. name is used when the document has none.
func ParseSetFile(data []byte, name string) (SetFile, error) {
	var f SetFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return SetFile{}, fmt.Errorf("parsing codec set: %w", err)
	}
	if strings.TrimSpace(f.Name) == "" {
		f.Name = name
	}
	return f, nil
}

// Load reads a codec-set file and builds it. The set name defaults to the file's
// base name without extension.
func (r *Registry) Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading codec set: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f, err := ParseSetFile(data, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	set, err := r.Build(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}
