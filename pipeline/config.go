package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/transfer"
)

// Pipeline selects which graph a Runner builds.
type Pipeline string

const (
	// AdtexCoverage calls copy-number changes from control and tumor
	// coverage files.
	AdtexCoverage Pipeline = "adtex"
	// AdtexZygosity additionally estimates ploidy from a B-allele
	// frequency file.
	AdtexZygosity Pipeline = "adtex-zygosity"
	// MuSE calls somatic point mutations from control and tumor BAMs.
	MuSE Pipeline = "muse"
)

// Pipelines lists every pipeline in a stable order.
func Pipelines() []Pipeline {
	return []Pipeline{AdtexCoverage, AdtexZygosity, MuSE}
}

// Default container images.
const (
	DefaultAdtexImage = "jeltje/adtex"
	DefaultMuseImage  = "jeltje/musev1.0"
)

// Names under which the shared references appear in job working
// directories.
const (
	refWhitelist = "white.bed"
	refGenome    = "ref.fa"
	refIndex     = "ref.fa.fai"
	refDBSNP     = "dbsnp.vcf"
)

var (
	errUnknownPipeline = errors.New("unknown pipeline")
	errRequired        = errors.New("required")
	errSampleURLs      = errors.New("wrong number of input urls")
	errKeyMismatch     = errors.New("graph was submitted with a different master key")
	errKeyRequired     = errors.New("inputs are encrypted and no master key is loaded")
)

// Config is the immutable configuration of one run. It is passed by value
// and embedded in job payloads, so every field except MasterKey is
// persisted with the graph.
type Config struct {
	// Manifest is the path the samples were read from, kept for display.
	Manifest string   `json:"manifest,omitempty"`
	Samples  []Sample `json:"samples,omitempty"`

	// MasterKey enables SSE-C downloads and uploads. Nil means plain
	// transfers. It is never serialized.
	MasterKey []byte `json:"-"`
	// Encrypted records whether the graph was submitted with a master key.
	Encrypted bool `json:"encrypted"`

	// OutputDir receives a copy of every sample result when set.
	OutputDir string `json:"output_dir,omitempty"`
	// Destination is an optional "bucket/prefix" upload target.
	Destination string `json:"destination,omitempty"`

	Sudo  bool `json:"sudo"`
	Cores int  `json:"cores"`

	// Reference inputs. Values are http(s):// or s3:// URLs, file:// URLs,
	// or local paths.
	Whitelist      string `json:"whitelist,omitempty"`
	Reference      string `json:"reference,omitempty"`
	ReferenceIndex string `json:"reference_index,omitempty"`
	DBSNP          string `json:"dbsnp,omitempty"`

	AdtexImage string `json:"adtex_image,omitempty"`
	MuseImage  string `json:"muse_image,omitempty"`

	// ToolTimeout bounds each tool job attempt. Zero means unbounded.
	ToolTimeout time.Duration `json:"tool_timeout,omitempty"`
}

// reference is a shared input staged once per graph.
type reference struct {
	Name   string
	Source string
}

// references returns the shared inputs p needs, in staging order.
func (c Config) references(p Pipeline) []reference {
	switch p {
	case AdtexCoverage, AdtexZygosity:
		return []reference{{Name: refWhitelist, Source: c.Whitelist}}
	case MuSE:
		return []reference{
			{Name: refGenome, Source: c.Reference},
			{Name: refIndex, Source: c.ReferenceIndex},
			{Name: refDBSNP, Source: c.DBSNP},
		}
	}
	return nil
}

// sampleURLs is the number of input URLs each manifest line carries.
func sampleURLs(p Pipeline) int {
	if p == AdtexZygosity {
		return 3
	}
	return 2
}

// normalize validates c for p and returns a copy with defaults applied
// and local paths made absolute.
func (c Config) normalize(p Pipeline) (Config, error) {
	switch p {
	case AdtexCoverage, AdtexZygosity, MuSE:
	default:
		return c, &jobgraph.ConfigError{Field: "pipeline", Err: fmt.Errorf("%q: %w", p, errUnknownPipeline)}
	}

	if len(c.Samples) == 0 {
		return c, &jobgraph.ConfigError{Field: "manifest", Err: errManifestEmpty}
	}
	want := sampleURLs(p)
	for _, s := range c.Samples {
		if len(s.URLs) != want {
			return c, &jobgraph.ConfigError{
				Field: "manifest",
				Err:   fmt.Errorf("sample %s: %d urls, %s needs %d: %w", s.UUID, len(s.URLs), p, want, errSampleURLs),
			}
		}
	}

	if c.MasterKey != nil {
		if len(c.MasterKey) != transfer.KeySize {
			return c, &jobgraph.ConfigError{Field: "ssec", Err: fmt.Errorf("master key is %d bytes, want %d", len(c.MasterKey), transfer.KeySize)}
		}
		c.Encrypted = true
	}

	if c.Destination != "" {
		if _, err := transfer.ParseDestination(c.Destination); err != nil {
			return c, err
		}
	}

	if c.OutputDir != "" {
		abs, err := filepath.Abs(c.OutputDir)
		if err != nil {
			return c, &jobgraph.ConfigError{Field: "out", Err: err}
		}
		c.OutputDir = abs
	}

	absRefs := map[string]*string{
		refWhitelist: &c.Whitelist,
		refGenome:    &c.Reference,
		refIndex:     &c.ReferenceIndex,
		refDBSNP:     &c.DBSNP,
	}
	for _, ref := range c.references(p) {
		if ref.Source == "" {
			return c, &jobgraph.ConfigError{Field: ref.Name, Err: errRequired}
		}
		if isRemote(ref.Source) {
			continue
		}
		path, err := localPath(ref.Source)
		if err != nil {
			return c, &jobgraph.ConfigError{Field: ref.Name, Err: err}
		}
		*absRefs[ref.Name] = path
	}

	if c.Cores <= 0 {
		c.Cores = runtime.NumCPU()
	}
	if c.AdtexImage == "" {
		c.AdtexImage = DefaultAdtexImage
	}
	if c.MuseImage == "" {
		c.MuseImage = DefaultMuseImage
	}
	return c, nil
}

// withoutSamples drops the sample list so per-sample payloads stay small.
func (c Config) withoutSamples() Config {
	c.Samples = nil
	return c
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "s3://")
}

// remoteURL turns a remote reference into a URL curl can fetch. s3://
// sources are addressed under baseURL.
func remoteURL(src, baseURL string) string {
	rest, ok := strings.CutPrefix(src, "s3://")
	if !ok {
		return src
	}
	if baseURL == "" {
		baseURL = transfer.DefaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(rest, "/")
}

// localPath resolves a file:// URL or bare path to an existing regular
// file.
func localPath(src string) (string, error) {
	path, err := filepath.Abs(strings.TrimPrefix(src, "file://"))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}
	return path, nil
}
