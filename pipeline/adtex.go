package pipeline

import (
	"context"

	"github.com/xraph/jobgraph/container"
	"github.com/xraph/jobgraph/id"
	"github.com/xraph/jobgraph/job"
)

// adtexOutDir is the directory ADTEx writes its results to.
const adtexOutDir = "adtex_out"

// Zygosity input names, in manifest order.
const (
	inputBAF     = "sample.baf"
	inputControl = "control.cov"
	inputTumor   = "tumor.cov"
)

var zygosityInputs = []string{inputBAF, inputControl, inputTumor}

// adtexCoverageArgs is the ADTEx command line for a coverage run.
func adtexCoverageArgs(control, tumor string) []string {
	return []string{
		"-n", container.Path(control),
		"-t", container.Path(tumor),
		"-b", container.Path(refWhitelist),
		"-o", container.Path(adtexOutDir),
		"-p", "--DOC",
	}
}

// adtexZygosityArgs is the ADTEx command line for a run with ploidy
// estimation from B-allele frequencies.
func adtexZygosityArgs() []string {
	return []string{
		"-n", container.Path(inputControl),
		"-t", container.Path(inputTumor),
		"-b", container.Path(refWhitelist),
		"-o", container.Path(adtexOutDir),
		"-p", "--estimatePloidy",
		"--baf", container.Path(inputBAF),
	}
}

// runAdtexCoverage fetches one sample's coverage files, runs ADTEx and
// packages adtex_out as <uuid>.tgz.
func (r *Runner) runAdtexCoverage(ctx context.Context, jc *job.Context, p samplePayload) error {
	cfg := p.Config
	if err := readAll(ctx, jc, p.Refs, refWhitelist); err != nil {
		return err
	}

	control := p.Sample.UUID + ".control.coverage"
	tumor := p.Sample.UUID + ".tumor.coverage"
	if err := r.fetch(ctx, jc, cfg, p.Sample.URLs[0], control); err != nil {
		return err
	}
	if err := r.fetch(ctx, jc, cfg, p.Sample.URLs[1], tumor); err != nil {
		return err
	}

	if err := r.tool(ctx, jc, cfg, cfg.AdtexImage, adtexCoverageArgs(control, tumor)); err != nil {
		return err
	}
	if err := requireOutput(cfg.AdtexImage, jc.Path(adtexOutDir)); err != nil {
		return err
	}

	name := p.Sample.UUID + ".tgz"
	if err := Tarball(jc.Path(name), jc.Path(adtexOutDir)); err != nil {
		return err
	}
	return r.publish(ctx, jc, p, name, 0)
}

// runZygosityInputs downloads the three sample inputs in children and
// declares the ADTEx run as their follow-on.
func (r *Runner) runZygosityInputs(ctx context.Context, jc *job.Context, p samplePayload) error {
	inputs := make(map[string]id.ArtifactID, len(zygosityInputs))
	ids := make([]id.ArtifactID, 0, len(zygosityInputs))

	for i, name := range zygosityInputs {
		artID, err := jc.Reserve(ctx)
		if err != nil {
			return err
		}
		payload := downloadPayload{
			URL:       p.Sample.URLs[i],
			Name:      name,
			Artifact:  artID,
			Encrypted: p.Config.Encrypted,
		}
		if _, err := job.Child(jc, r.download, payload); err != nil {
			return err
		}
		inputs[name] = artID
		ids = append(ids, artID)
	}

	next := p
	next.Inputs = inputs
	opts := append(toolOptions(p.Config), job.WithInputs(ids...))
	_, err := job.FollowOn(jc, r.zygosityRun, next, opts...)
	return err
}

// runZygosity runs ADTEx with ploidy estimation and packages adtex_out as
// <uuid>.adtex.tgz.
func (r *Runner) runZygosity(ctx context.Context, jc *job.Context, p samplePayload) error {
	cfg := p.Config
	if err := readAll(ctx, jc, p.Refs, refWhitelist); err != nil {
		return err
	}
	if err := readAll(ctx, jc, p.Inputs, zygosityInputs...); err != nil {
		return err
	}

	if err := r.tool(ctx, jc, cfg, cfg.AdtexImage, adtexZygosityArgs()); err != nil {
		return err
	}
	if err := requireOutput(cfg.AdtexImage, jc.Path(adtexOutDir)); err != nil {
		return err
	}

	name := p.Sample.UUID + ".adtex.tgz"
	if err := Tarball(jc.Path(name), jc.Path(adtexOutDir)); err != nil {
		return err
	}
	return r.publish(ctx, jc, p, name, zygosityUploadDisk)
}
