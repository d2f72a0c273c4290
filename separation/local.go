package separation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/chenyichao1993/ai-stem-splitter-sub000/model"
	"go.uber.org/zap"
)

// LocalBackend spawns the separation CLI tool and picks up the per-stem
// files it writes to an output directory.
type LocalBackend struct {
	Binary  string
	Model   string
	Timeout time.Duration // Wall-clock kill switch for the subprocess
}

func (b *LocalBackend) Separate(ctx context.Context, src SourceAudio, report func(progress int)) ([]Stem, error) {
	workDir, err := os.MkdirTemp("", "separation-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir, %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, filepath.Base(src.Name))
	if err := os.WriteFile(inputPath, src.Data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write input file, %w", err)
	}

	outDir := filepath.Join(workDir, "out")

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.Binary, "-n", b.Model, "-o", outDir, inputPath)

	stderrBuf := &bytes.Buffer{}
	cmd.Stderr = stderrBuf
	cmd.Stdout = stderrBuf

	zap.L().Debug("Running separation command", zap.String("cmd", cmd.String()))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrSpawn, err)
	}

	report(10)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("separation process killed after %s, %w", timeout, ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: stderrBuf.String(),
			}
		}

		return nil, fmt.Errorf("%w, %v", ErrSpawn, err)
	}

	report(90)

	stems, err := collectStems(outDir)
	if err != nil {
		return nil, err
	}
	if len(stems) == 0 {
		return nil, fmt.Errorf("separation process produced no stem files, stderr: %s", stderrBuf.String())
	}

	return stems, nil
}

// collectStems walks the output tree looking for files named after the
// stem enumeration. The tool nests output under model/track directories
// so the walk is recursive. A missing expected stem is skipped, not
// fatal.
func collectStems(outDir string) ([]Stem, error) {
	found := map[string][]byte{}

	err := filepath.WalkDir(outDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		name := d.Name()
		base := name[:len(name)-len(filepath.Ext(name))]

		if !model.ValidStemType(base) {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			zap.L().Warn("Failed to read stem output file", zap.String("path", p), zap.Error(err))
			return nil
		}

		found[base] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan output dir, %w", err)
	}

	stems := make([]Stem, 0, len(found))
	for _, t := range model.StemTypes {
		if data, ok := found[t]; ok {
			stems = append(stems, Stem{
				Type:     t,
				Filename: t + ".wav",
				Data:     data,
			})
		}
	}

	return stems, nil
}
