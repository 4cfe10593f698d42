// Package bsarch drives the external BSArch command line tool.
package bsarch

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/evildarkarchon/unpackrr/internal/logging"

	"go.uber.org/zap"
)

const (
	DefaultExecutable = "BSArch.exe"

	errorMarker = "error:"
)

type Output struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Succeeded requires a zero exit code and no error marker anywhere in the
// combined output. The tool sometimes exits 0 after printing an error.
func (o Output) Succeeded() bool {
	return o.ExitCode == 0 && !HasErrorMarker(o.Stdout, o.Stderr)
}

func HasErrorMarker(stdout, stderr string) bool {
	return strings.Contains(strings.ToLower(stdout+"\n"+stderr), errorMarker)
}

// ResolvePath returns configured when set, otherwise the default executable
// next to the running binary.
func ResolvePath(configured string) string {
	if configured != "" {
		return configured
	}
	exe, err := os.Executable()
	if err != nil {
		return DefaultExecutable
	}
	return filepath.Join(filepath.Dir(exe), DefaultExecutable)
}

type Runner struct {
	path   string
	logger *logging.Logger
}

func NewRunner(path string, logger *logging.Logger) *Runner {
	return &Runner{
		path:   path,
		logger: logger,
	}
}

func (r *Runner) Path() string {
	return r.path
}

func (r *Runner) Validate() error {
	info, err := os.Stat(r.path)
	if err != nil || info.IsDir() {
		return &ToolNotFoundError{Path: r.path}
	}
	return nil
}

func (r *Runner) Available() bool {
	return r.Validate() == nil
}

// Unpack runs "<tool> unpack <archive> <outputDir>".
func (r *Runner) Unpack(ctx context.Context, archivePath, outputDir string) (Output, error) {
	output, err := r.run(ctx, "unpack", archivePath, outputDir)
	if err != nil {
		return output, err
	}

	if !output.Succeeded() {
		r.logger.Warn("bsarch unpack failed",
			zap.String("archive", archivePath),
			zap.Int("exit_code", output.ExitCode),
			zap.String("stderr", strings.TrimSpace(output.Stderr)),
		)
		return output, &ToolFailedError{Archive: archivePath, Output: output}
	}

	r.logger.Debug("bsarch unpack completed",
		zap.String("archive", archivePath),
		zap.String("output_dir", outputDir),
	)
	return output, nil
}

// List runs "<tool> <archive> -list" and returns the contained file names.
func (r *Runner) List(ctx context.Context, archivePath string) ([]string, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	output, err := r.run(ctx, archivePath, "-list")
	if err != nil {
		return nil, err
	}
	if !output.Succeeded() {
		return nil, &ToolFailedError{Archive: archivePath, Output: output}
	}

	return ParseListing(output.Stdout), nil
}

// ParseListing drops blank lines and the "Archive:" and "Files:" summary
// lines from the tool's listing output.
func ParseListing(stdout string) []string {
	var files []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Archive:") || strings.HasPrefix(line, "Files:") {
			continue
		}
		files = append(files, line)
	}
	return files
}

func (r *Runner) run(ctx context.Context, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, r.path, args...)
	hideWindow(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running bsarch",
		zap.String("path", r.path),
		zap.Strings("args", args),
	)

	err := cmd.Run()
	output := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			output.ExitCode = exitErr.ExitCode()
			return output, nil
		}
		return output, &ExecError{Path: r.path, Err: err}
	}

	return output, nil
}
