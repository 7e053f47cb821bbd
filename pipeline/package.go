package pipeline

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/artifact"
)

// ErrNoOutput reports a tool that exited cleanly without writing its
// expected result.
var ErrNoOutput = errors.New("pipeline: tool produced no output")

// Tarball writes srcDir as a gzip-compressed tar archive to dst. Entries
// are rooted at the base name of srcDir. dst is replaced atomically.
func Tarball(dst, srcDir string) error {
	info, err := os.Stat(srcDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("tarball %s: not a directory", srcDir)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTarball(pw, srcDir))
	}()
	err = artifact.WriteFile(dst, pr)
	_ = pr.CloseWithError(err)
	return err
}

func writeTarball(w io.Writer, srcDir string) error {
	gz, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(gz)

	root := filepath.Dir(srcDir)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return fmt.Errorf("tarball %s: %w", srcDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// requireOutput fails with ErrNoOutput, wrapped in a tool error for
// image, unless path is a non-empty file or a directory with at least one
// entry.
func requireOutput(image, path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			entries, rerr := os.ReadDir(path)
			if rerr == nil && len(entries) > 0 {
				return nil
			}
		} else if info.Size() > 0 {
			return nil
		}
	}
	return &jobgraph.ToolError{
		Tool: image,
		Err:  fmt.Errorf("%s: %w", filepath.Base(path), ErrNoOutput),
	}
}

// export copies src into dir under its base name. An empty dir is a
// no-op.
func export(src, dir string) error {
	if dir == "" {
		return nil
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := artifact.CopyFile(src, dst); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(src), err)
	}
	return nil
}
