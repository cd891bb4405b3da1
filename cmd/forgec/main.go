// Command forgec is the thin CLI front-end: configuration loading,
// flag binding, and logging setup are all explicitly out-of-scope for
// the core driver, so they live here as glue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	forgec "github.com/kralicky/forgec"
	"github.com/kralicky/forgec/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var otpRelease string

	root := &cobra.Command{
		Use:   "forgec",
		Short: "Incremental build driver",
		Long:  "forgec discovers sources, tracks their include/transform/behaviour dependencies, and invokes the compiler only where needed.",
	}
	root.PersistentFlags().String("project-dir", ".", "project directory to build")
	root.PersistentFlags().StringVar(&otpRelease, "otp-release", "", "release identifier used to evaluate platform-define rules")
	_ = viper.BindPFlag("project-dir", root.PersistentFlags().Lookup("project-dir"))

	root.AddCommand(newCompileCmd(&otpRelease))
	root.AddCommand(newTestCmd(&otpRelease))

	return root
}

func newCompileCmd(otpRelease *string) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Build every out-of-date source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, config.Compile, *otpRelease)
		},
	}
}

func newTestCmd(otpRelease *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Build the test-variant output with debug info forced on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, config.Test, *otpRelease)
		},
	}
}

func run(cmd *cobra.Command, variant config.Command, otpRelease string) error {
	projectDir, err := cmd.Flags().GetString("project-dir")
	if err != nil {
		return err
	}

	v := viper.New()
	opts, err := config.Load(v, projectDir)
	if err != nil {
		return err
	}
	opts.PlatformDefines = filterMatchingDefines(opts.PlatformDefines, platformString(otpRelease))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	driver := &forgec.Driver{
		ProjectDir:       projectDir,
		Options:          opts,
		Compile:          nativeCompiler,
		GeneratorCompile: nativeCompiler,
		LoadPath:         &forgec.LoadPath{},
		Logger:           logger,
	}

	h, err := driver.Run(context.Background(), variant)
	if h != nil {
		for _, d := range h.Diagnostics() {
			fmt.Fprintln(cmd.ErrOrStderr(), d.Error())
		}
	}
	return err
}

// platformString composes the "otp-release-sysarch-wordsize" string
// platform-define rules are matched against, from the caller-supplied
// release and the running process's own architecture/word size.
func platformString(otpRelease string) string {
	return fmt.Sprintf("%s-%s-%s", otpRelease, runtime.GOARCH, strconv.Itoa(strconv.IntSize))
}

func filterMatchingDefines(defines []config.PlatformDefine, platform string) []config.PlatformDefine {
	var out []config.PlatformDefine
	for _, d := range defines {
		if d.Matches(platform) {
			out = append(out, d)
		}
	}
	return out
}
