package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
	"github.com/xraph/jobgraph/transfer"
)

// startPayload drives the root job and its spawn-samples follow-on.
type startPayload struct {
	Pipeline Pipeline                 `json:"pipeline"`
	Config   Config                   `json:"config"`
	Refs     map[string]id.ArtifactID `json:"refs,omitempty"`
}

// samplePayload drives the per-sample jobs.
type samplePayload struct {
	Config Config                   `json:"config"`
	Sample Sample                   `json:"sample"`
	Refs   map[string]id.ArtifactID `json:"refs"`
	Inputs map[string]id.ArtifactID `json:"inputs,omitempty"`
	Output id.ArtifactID            `json:"output"`
}

type downloadPayload struct {
	URL       string        `json:"url"`
	Name      string        `json:"name"`
	Artifact  id.ArtifactID `json:"artifact"`
	Encrypted bool          `json:"encrypted"`
}

type uploadPayload struct {
	Artifact    id.ArtifactID `json:"artifact"`
	Name        string        `json:"name"`
	Destination string        `json:"destination"`
	Encrypted   bool          `json:"encrypted"`
}

// ──────────────────────────────────────────────────
// Shared stages
// ──────────────────────────────────────────────────

// runStart stages the shared references. Remote ones are downloaded by
// children; local files are sealed here. The follow-on only becomes
// runnable once every reference is sealed.
func (r *Runner) runStart(ctx context.Context, jc *job.Context, p startPayload) error {
	refs := make(map[string]id.ArtifactID)
	var inputs []id.ArtifactID

	for _, ref := range p.Config.references(p.Pipeline) {
		artID, err := jc.Reserve(ctx)
		if err != nil {
			return err
		}
		refs[ref.Name] = artID
		inputs = append(inputs, artID)

		if isRemote(ref.Source) {
			payload := downloadPayload{
				URL:      remoteURL(ref.Source, r.transfers.BaseURL()),
				Name:     ref.Name,
				Artifact: artID,
			}
			if _, err := job.Child(jc, r.download, payload); err != nil {
				return err
			}
			continue
		}
		if err := jc.Update(ctx, artID, ref.Source); err != nil {
			// A local reference that is not there will not appear on retry.
			if errors.Is(err, jobgraph.ErrEmptyArtifact) {
				return &jobgraph.ConfigError{Field: ref.Name, Err: err}
			}
			return fmt.Errorf("stage %s: %w", ref.Name, err)
		}
	}

	next := startPayload{Pipeline: p.Pipeline, Config: p.Config, Refs: refs}
	_, err := job.FollowOn(jc, r.spawnSamples, next, job.WithInputs(inputs...))
	return err
}

// runSpawnSamples declares one job per manifest sample.
func (r *Runner) runSpawnSamples(ctx context.Context, jc *job.Context, p startPayload) error {
	cfg := p.Config.withoutSamples()

	for _, s := range p.Config.Samples {
		out, err := jc.Reserve(ctx)
		if err != nil {
			return err
		}
		payload := samplePayload{Config: cfg, Sample: s, Refs: p.Refs, Output: out}

		switch p.Pipeline {
		case AdtexCoverage:
			_, err = job.Child(jc, r.adtexCoverage, payload, toolOptions(cfg)...)
		case AdtexZygosity:
			_, err = job.Child(jc, r.zygosityInputs, payload)
		case MuSE:
			_, err = job.Child(jc, r.muse, payload, toolOptions(cfg)...)
		default:
			err = &jobgraph.ConfigError{Field: "pipeline", Err: fmt.Errorf("%q: %w", p.Pipeline, errUnknownPipeline)}
		}
		if err != nil {
			return err
		}
	}

	jc.Logger().Info("samples spawned",
		slog.String("pipeline", string(p.Pipeline)),
		slog.Int("samples", len(p.Config.Samples)),
	)
	return nil
}

func (r *Runner) runDownload(ctx context.Context, jc *job.Context, p downloadPayload) error {
	key, err := r.key(p.Encrypted)
	if err != nil {
		return err
	}
	if err := r.transfers.Download(ctx, p.URL, jc.Path(p.Name), key); err != nil {
		return err
	}
	return jc.Update(ctx, p.Artifact, p.Name)
}

func (r *Runner) runUpload(ctx context.Context, jc *job.Context, p uploadPayload) error {
	dest, err := transfer.ParseDestination(p.Destination)
	if err != nil {
		return err
	}
	key, err := r.key(p.Encrypted)
	if err != nil {
		return err
	}
	path, err := jc.Read(ctx, p.Artifact, p.Name)
	if err != nil {
		return err
	}
	if err := r.transfers.Upload(ctx, path, dest, key); err != nil {
		return err
	}
	jc.Logger().Info("result uploaded",
		slog.String("name", p.Name),
		slog.String("destination", dest.String()),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func toolOptions(cfg Config) []job.Option {
	return []job.Option{job.WithCores(cfg.Cores), job.WithTimeout(cfg.ToolTimeout)}
}

// readAll materializes every named artifact into the working directory.
func readAll(ctx context.Context, jc *job.Context, arts map[string]id.ArtifactID, names ...string) error {
	for _, name := range names {
		artID, ok := arts[name]
		if !ok {
			return &jobgraph.ConfigError{Field: name, Err: errRequired}
		}
		if _, err := jc.Read(ctx, artID, name); err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
	}
	return nil
}

// publish seals the result file at name into the sample's reserved
// output, copies it to the output directory and schedules the upload.
// disk is the upload's scratch request; zero keeps the default.
func (r *Runner) publish(ctx context.Context, jc *job.Context, p samplePayload, name string, disk int64) error {
	if err := jc.Update(ctx, p.Output, name); err != nil {
		return err
	}
	if err := export(jc.Path(name), p.Config.OutputDir); err != nil {
		return err
	}
	if p.Config.Destination == "" {
		return nil
	}

	opts := []job.Option{job.WithInputs(p.Output)}
	if disk > 0 {
		opts = append(opts, job.WithDisk(disk))
	}
	_, err := job.Child(jc, r.upload, uploadPayload{
		Artifact:    p.Output,
		Name:        name,
		Destination: p.Config.Destination,
		Encrypted:   p.Config.Encrypted,
	}, opts...)
	return err
}
