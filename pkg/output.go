package torrentcombine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

type outputKind int

const (
	outputReal      outputKind = iota // staging file on disk
	outputSimulated                   // dry run, nothing is written
)

// mergeOutput is where a merge scan writes the merged bytes. A real output
// owns a registered staging file; a simulated output discards everything
// and only reports the paths a real run would produce.
type mergeOutput struct {
	kind  outputKind
	scope *TempScope
	file  *os.File
	w     *bufio.Writer
	size  int64
}

func newSimulatedOutput(size int64) *mergeOutput {
	return &mergeOutput{kind: outputSimulated, size: size}
}

func newRealOutput(scope *TempScope, dir string, size int64) (*mergeOutput, error) {
	file, err := scope.CreateTemp(dir)
	if err != nil {
		return nil, err
	}
	return &mergeOutput{
		kind:  outputReal,
		scope: scope,
		file:  file,
		w:     bufio.NewWriterSize(file, ChunkSize),
		size:  size,
	}, nil
}

func (o *mergeOutput) writer() io.Writer {
	switch o.kind {
	case outputReal:
		return o.w
	default:
		return io.Discard
	}
}

// finish flushes buffered merged bytes to the staging file.
func (o *mergeOutput) finish() error {
	switch o.kind {
	case outputReal:
		if err := o.w.Flush(); err != nil {
			return fmt.Errorf("failed to flush staging file %s: %w", o.file.Name(), err)
		}
	}
	return nil
}

// discard drops the staging file, if any.
func (o *mergeOutput) discard() {
	switch o.kind {
	case outputReal:
		name := o.file.Name()
		o.file.Close()
		o.scope.Remove(name)
	}
}

// materialize writes the merged content to target. Real outputs copy the
// staging file into a fresh temporary file next to target and rename it
// into place, keeping the permission bits of like.
func (o *mergeOutput) materialize(target, like string) error {
	switch o.kind {
	case outputSimulated:
		log.Info().Str("target", target).Msg("dry run: would write merged file")
		return nil
	case outputReal:
		return o.copyTo(target, like)
	default:
		return fmt.Errorf("unknown merge output kind %d", o.kind)
	}
}

func (o *mergeOutput) copyTo(target, like string) error {
	local, err := o.scope.CreateTemp(filepath.Dir(target))
	if err != nil {
		return err
	}
	localName := local.Name()

	if _, err := io.Copy(local, io.NewSectionReader(o.file, 0, o.size)); err != nil {
		local.Close()
		o.scope.Remove(localName)
		return fmt.Errorf("failed to copy merged content to %s: %w", localName, err)
	}

	if info, err := os.Stat(like); err == nil {
		if err := local.Chmod(info.Mode().Perm()); err != nil {
			log.Debug().Err(err).Str("path", localName).Msg("failed to copy permissions")
		}
	}

	if err := local.Sync(); err != nil {
		local.Close()
		o.scope.Remove(localName)
		return fmt.Errorf("failed to sync %s: %w", localName, err)
	}
	if err := local.Close(); err != nil {
		o.scope.Remove(localName)
		return fmt.Errorf("failed to close %s: %w", localName, err)
	}

	return o.scope.Persist(localName, target)
}
