package pipeline

import (
	"context"
	"strconv"

	"github.com/xraph/jobgraph/container"
	"github.com/xraph/jobgraph/job"
)

// museVersion selects the caller build inside the MuSE image.
const museVersion = "MuSEv1.0rc"

// museArgs is the MuSE command line for a whole-exome run.
func museArgs(control, tumor, output string, cores int) []string {
	return []string{
		"--muse", museVersion,
		"--mode", "wxs",
		"--dbsnp", container.Path(refDBSNP),
		"--fafile", container.Path(refGenome),
		"--tumor-bam", container.Path(tumor),
		"--normal-bam", container.Path(control),
		"--outfile", container.Path(output),
		"--cpus", strconv.Itoa(cores),
	}
}

// runMuse fetches one sample's BAMs and calls variants into
// <uuid>.muse.vcf.
func (r *Runner) runMuse(ctx context.Context, jc *job.Context, p samplePayload) error {
	cfg := p.Config
	if err := readAll(ctx, jc, p.Refs, refGenome, refIndex, refDBSNP); err != nil {
		return err
	}

	control := p.Sample.UUID + ".control.bam"
	tumor := p.Sample.UUID + ".tumor.bam"
	if err := r.fetch(ctx, jc, cfg, p.Sample.URLs[0], control); err != nil {
		return err
	}
	if err := r.fetch(ctx, jc, cfg, p.Sample.URLs[1], tumor); err != nil {
		return err
	}

	output := p.Sample.UUID + ".muse.vcf"
	if err := r.tool(ctx, jc, cfg, cfg.MuseImage, museArgs(control, tumor, output, cfg.Cores)); err != nil {
		return err
	}
	if err := requireOutput(cfg.MuseImage, jc.Path(output)); err != nil {
		return err
	}
	return r.publish(ctx, jc, p, output, 0)
}
