package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xraph/jobgraph"
)

var (
	errManifestFields    = errors.New("expected uuid followed by two or three urls")
	errManifestDuplicate = errors.New("duplicate sample uuid")
	errManifestEmpty     = errors.New("manifest lists no samples")
)

// Sample is one manifest line: a sample identifier and its input URLs in
// the order the pipeline expects them.
type Sample struct {
	UUID string   `json:"uuid"`
	URLs []string `json:"urls"`
}

// ParseManifest reads comma-separated "uuid,url1,url2[,url3]" lines.
// Blank lines and lines starting with '#' are skipped. Any malformed line
// is a *jobgraph.ConfigError naming its line number.
func ParseManifest(r io.Reader) ([]Sample, error) {
	var samples []Sample
	seen := make(map[string]bool)

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) < 3 || len(fields) > 4 || fields[0] == "" {
			return nil, manifestError(n, errManifestFields)
		}
		for _, f := range fields[1:] {
			if f == "" {
				return nil, manifestError(n, errManifestFields)
			}
		}
		if seen[fields[0]] {
			return nil, manifestError(n, fmt.Errorf("%s: %w", fields[0], errManifestDuplicate))
		}
		seen[fields[0]] = true

		samples = append(samples, Sample{UUID: fields[0], URLs: fields[1:]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(samples) == 0 {
		return nil, &jobgraph.ConfigError{Field: "manifest", Err: errManifestEmpty}
	}
	return samples, nil
}

// ReadManifest parses the manifest file at path.
func ReadManifest(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &jobgraph.ConfigError{Field: "manifest", Err: err}
	}
	defer f.Close()
	return ParseManifest(f)
}

func manifestError(line int, err error) error {
	return &jobgraph.ConfigError{
		Field: "manifest",
		Err:   fmt.Errorf("line %d: %w", line, err),
	}
}
