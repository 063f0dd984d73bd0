// Command probectl drives the tracetarget probe binary under a ptrace
// controller: it intercepts both traps, inspects and optionally rewrites
// the target's counters between them, and verifies every observable
// property of the sequence.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-bugger/tracetarget/pkg/config"
	"github.com/go-bugger/tracetarget/pkg/gobuild"
	"github.com/go-bugger/tracetarget/pkg/logflags"
	"github.com/go-bugger/tracetarget/pkg/probe"
)

const version = "0.1.0"

var (
	logFlag        bool
	logOutput      string
	buildFlags     string
	globalOverride int
	disasm         bool
	saveConfig     bool
)

func main() {
	rootCommand := &cobra.Command{
		Use:   "probectl",
		Short: "probectl drives the tracetarget probe under a ptrace controller.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(logFlag, logOutput)
		},
	}
	rootCommand.PersistentFlags().BoolVarP(&logFlag, "log", "", false, "Enable component logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (tracer,probe,build).")
	rootCommand.PersistentFlags().IntVar(&globalOverride, "global-override", 0, "Overwrite the process-wide counter with this value at the first trap.")
	rootCommand.PersistentFlags().BoolVar(&disasm, "disasm", false, "Disassemble the trap sites.")

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("probectl version: " + version)
		},
	}
	rootCommand.AddCommand(versionCommand)

	runCommand := &cobra.Command{
		Use:   "run [package]",
		Short: "Compile the probe target and drive it through its sequence.",
		Long: `Compiles the probe target with optimizations disabled, launches it under
the tracer, intercepts both traps, and verifies the observable contract.
The package defaults to ./cmd/tracetarget.`,
		Run: func(cmd *cobra.Command, args []string) {
			pkg := "./cmd/tracetarget"
			if len(args) > 0 {
				pkg = args[0]
			}
			conf := config.LoadConfig()
			if buildFlags == "" {
				buildFlags = conf.BuildFlags
			}
			debugname := gobuild.DefaultDebugBinaryPath("tracetarget")
			cmdline, out, err := gobuild.GoBuild(debugname, []string{pkg}, buildFlags)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n%s", cmdline, err, out)
				os.Exit(1)
			}
			status := execute(cmd, debugname, conf)
			gobuild.Remove(debugname)
			os.Exit(status)
		},
	}
	runCommand.Flags().StringVar(&buildFlags, "build-flags", "", "Build flags, to be passed to the compiler.")
	rootCommand.AddCommand(runCommand)

	execCommand := &cobra.Command{
		Use:   "exec <binary>",
		Short: "Drive a prebuilt probe target binary.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			path, err := filepath.Abs(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			os.Exit(execute(cmd, path, config.LoadConfig()))
		},
	}
	rootCommand.AddCommand(execCommand)

	configCommand := &cobra.Command{
		Use:   "config",
		Short: "Print the configuration, optionally persisting flag values.",
		Long: `Prints the effective configuration. With --save, the value of
--global-override (when given) is folded in and the configuration is
written back to the config file.`,
		Run: func(cmd *cobra.Command, args []string) {
			conf := config.LoadConfig()
			if cmd.Flags().Changed("global-override") {
				conf.GlobalOverride = &globalOverride
			}
			if saveConfig {
				if err := config.SaveConfig(conf); err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(1)
				}
			}
			fmt.Printf("build-flags: %q\n", conf.BuildFlags)
			fmt.Printf("disasm-lines: %d\n", conf.DisasmLines)
			if conf.GlobalOverride != nil {
				fmt.Printf("global-override: %#x\n", *conf.GlobalOverride)
			}
		},
	}
	configCommand.Flags().BoolVar(&saveConfig, "save", false, "Write the configuration back to the config file.")
	rootCommand.AddCommand(configCommand)

	rootCommand.Execute()
}

func execute(cmd *cobra.Command, binary string, conf *config.Config) int {
	opts := probe.Options{}
	if cmd.Flags().Changed("global-override") {
		opts.GlobalOverride = &globalOverride
	} else if conf.GlobalOverride != nil {
		opts.GlobalOverride = conf.GlobalOverride
	}
	if disasm {
		opts.DisasmLines = conf.DisasmLines
	}

	report, err := probe.Run(binary, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Print(report.Summary())

	problems := report.Problems()
	for _, p := range problems {
		fmt.Fprintln(os.Stderr, "FAIL:", p)
	}
	if len(problems) > 0 {
		return 1
	}
	fmt.Println("all probe properties hold")
	return 0
}
