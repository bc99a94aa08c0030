// Package cli assembles the jump's cobra command surface: the bare-jump /
// boot-pack CLI (spec.md §6) and the flag-bearing intrinsic subcommands
// (`split`, `install`). It mirrors the teacher's cmd/internal/cli/
// apptainer.go Init/cmdInits registration idiom and its debug/verbose/
// quiet/nocolor persistent-flag pattern, trimmed to what a launcher (rather
// than a container runtime) needs.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/a-scie/jump/internal/pkg/bootpack"
	"github.com/a-scie/jump/internal/pkg/buildinfo"
	"github.com/a-scie/jump/internal/pkg/intrinsic"
	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/reader"
	"github.com/a-scie/jump/internal/pkg/sylog"
)

// cmdInits mirrors the teacher's registration list: each package-level
// init appends a function here instead of wiring flags at package scope,
// so command assembly order is explicit and test-friendly.
var cmdInits []func(*cobra.Command)

func addCmdInit(f func(*cobra.Command)) { cmdInits = append(cmdInits, f) }

var (
	debug   bool
	verbose bool
	quiet   bool
	nocolor bool
)

func init() {
	addCmdInit(func(root *cobra.Command) {
		root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "print debug level logs")
		root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print additional information")
		root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress normal output")
		root.PersistentFlags().BoolVar(&nocolor, "nocolor", false, "disable colorized output")
		root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
			level := sylog.InfoLevel
			switch {
			case debug:
				level = sylog.DebugLevel
			case verbose:
				level = sylog.VerboseLevel
			case quiet:
				level = sylog.ErrorLevel
			}
			sylog.SetLevel(int(level), !nocolor)
		}
	})
}

// NoColor reports whether color output was disabled via --nocolor.
func NoColor() bool { return nocolor }

// bootPackOptions holds the bare-jump / boot-pack command's own flags.
type bootPackOptions struct {
	jumpPath       string
	singleLiftLine bool
}

// NewRootCmd builds the bare-jump command tree (spec.md §6): `scie-jump
// [--help|-h] [--version|-V] [-sj|--jump|--scie-jump <path>]
// [--single-lift-line] [<manifest>...]`. With no manifest args and a
// lift.json in the working directory, that file is boot-packed; with
// neither, help is printed.
func NewRootCmd() *cobra.Command {
	opts := &bootPackOptions{singleLiftLine: true}

	root := &cobra.Command{
		Use:           "scie-jump [<manifest>...]",
		Short:         "Assemble or inspect self-contained interpreted-executable launchers (scies)",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifests := args
			if len(manifests) == 0 {
				if _, err := os.Stat("lift.json"); err == nil {
					manifests = []string{"lift.json"}
				} else {
					return cmd.Help()
				}
			}
			return runBootPack(manifests, opts)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.Flags().StringVarP(&opts.jumpPath, "jump", "j", "", "custom jump binary to embed (aliases: -sj, --scie-jump)")
	root.Flags().StringVar(&opts.jumpPath, "scie-jump", "", "custom jump binary to embed")
	_ = root.Flags().MarkHidden("scie-jump")
	root.Flags().StringVar(&opts.jumpPath, "sj", "", "custom jump binary to embed")
	_ = root.Flags().MarkHidden("sj")
	root.Flags().BoolVar(&opts.singleLiftLine, "single-lift-line", true, "serialize the lift manifest as a single JSON line")

	for _, f := range cmdInits {
		f(root)
	}
	return root
}

func runBootPack(manifests []string, opts *bootPackOptions) error {
	for _, manifestPath := range manifests {
		result, err := bootpack.Assemble(manifestPath, bootpack.Options{
			JumpPath:   opts.jumpPath,
			SingleLine: opts.singleLiftLine,
		})
		if err != nil {
			return err
		}
		if err := bootpack.Write(result.Name, result); err != nil {
			return err
		}
		sylog.Infof("assembled %s", result.Name)
	}
	return nil
}

// NewSplitCmd builds the `SCIE=split` flag-parsing command.
func NewSplitCmd(selfPath string, layout *reader.Layout, m *lift.Manifest) *cobra.Command {
	var outDir string
	var dryRun bool
	cmd := &cobra.Command{
		Use:           "split [<name>...]",
		Short:         "Split the executing scie into its component parts",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return intrinsic.Split(os.Stdout, selfPath, layout, m, intrinsic.SplitOptions{
				OutDir:  outDir,
				DryRun:  dryRun,
				Names:   args,
				NoColor: nocolor,
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "directory to write split parts into")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print `<name> <size> <role>` lines instead of writing files")
	return cmd
}

// NewInstallCmd builds the `SCIE=install` flag-parsing command.
func NewInstallCmd(selfPath string, m *lift.Manifest) *cobra.Command {
	var destDir string
	cmd := &cobra.Command{
		Use:           "install",
		Short:         "Write shim scripts for each named command",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return intrinsic.Install(destDir, selfPath, m)
		},
	}
	cmd.Flags().StringVarP(&destDir, "dest", "d", ".", "directory to write shim scripts into")
	return cmd
}

// RenderError prints a jumperr-shaped error as the stderr contract of
// spec.md §7 ("Error: ..." plus a contextual hint) and returns the process
// exit code to use.
func RenderError(err error) int {
	if err == nil {
		return 0
	}
	if je, ok := jumperr.As(err); ok {
		fmt.Fprintf(os.Stderr, "Error: %s\n", je.Err)
		if je.Hint != "" {
			fmt.Fprintf(os.Stderr, "%s\n", je.Hint)
		}
		return 1
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
