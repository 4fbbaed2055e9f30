// Package report writes category snapshots as CSV artifacts.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	outputDirectoryPermissionsConstant = os.FileMode(0o755)
	directoryCreateErrorTemplate       = "creating output directory %s: %w"
	artifactCreateErrorTemplate        = "creating artifact %s: %w"
	artifactWriteErrorTemplate         = "writing artifact %s: %w"
)

// Artifact is one category's complete snapshot: a fixed header and the
// already-sorted rows beneath it.
type Artifact struct {
	FileName string
	Header   []string
	Rows     [][]string
}

// Emitter writes artifacts onto a filesystem. Each emission is a full
// overwrite; re-running against unchanged data produces byte-identical
// files.
type Emitter struct {
	fileSystem afero.Fs
}

// NewEmitter constructs an Emitter over the provided filesystem. A nil
// filesystem falls back to the operating system.
func NewEmitter(fileSystem afero.Fs) *Emitter {
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	return &Emitter{fileSystem: fileSystem}
}

// Emit writes one artifact beneath the given directory, creating the
// directory when needed and truncating any prior file.
func (emitter *Emitter) Emit(directory string, artifact Artifact) error {
	if directoryError := emitter.fileSystem.MkdirAll(directory, outputDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(directoryCreateErrorTemplate, directory, directoryError)
	}

	artifactPath := filepath.Join(directory, artifact.FileName)
	artifactFile, createError := emitter.fileSystem.Create(artifactPath)
	if createError != nil {
		return fmt.Errorf(artifactCreateErrorTemplate, artifactPath, createError)
	}

	csvWriter := csv.NewWriter(artifactFile)
	writeError := csvWriter.Write(artifact.Header)
	if writeError == nil {
		writeError = csvWriter.WriteAll(artifact.Rows)
	}
	if writeError == nil {
		csvWriter.Flush()
		writeError = csvWriter.Error()
	}

	closeError := artifactFile.Close()
	if writeError != nil {
		return fmt.Errorf(artifactWriteErrorTemplate, artifactPath, writeError)
	}
	if closeError != nil {
		return fmt.Errorf(artifactWriteErrorTemplate, artifactPath, closeError)
	}
	return nil
}
