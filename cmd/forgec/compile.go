package main

import (
	"bytes"
	"os/exec"

	"github.com/kralicky/forgec/reporter"
	"github.com/kralicky/forgec/runner"
)

// nativeCompiler is the concrete black-box compile(source, options)
// function the core treats as an external collaborator: it shells
// out to the real compiler toolchain and classifies the result via
// reporter.Handler.
func nativeCompiler(source, target string, opts runner.CompileOptions) *reporter.Handler {
	h := reporter.NewHandler()

	args := []string{"-o", opts.OutDir, "-I", opts.IncludeDir}
	args = append(args, opts.Extra...)
	args = append(args, source)

	cmd := exec.Command("erlc", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		h.Errorf(source, 0, "%s: %s", err, stderr.String())
		return h
	}
	if stderr.Len() > 0 {
		h.Warnf(source, 0, "%s", stderr.String())
	}
	return h
}
