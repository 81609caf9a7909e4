/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package cli is the gateway's operator surface (component C14): a
// spf13/cobra command tree (run, validate, status) with logging set up
// once in the root command's PersistentPreRun, the way the teacher
// library's cobra wrapper installs its logger hook before any subcommand
// body runs. The gateway's flag surface is small and fixed, so it talks
// to spf13/cobra directly rather than through the teacher's generic
// AddFlagXxx wrapper (see DESIGN.md).
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sabouaram/monoproxy/internal/xlog"
)

var (
	flagConfig  string
	flagVerbose int
	flagJSON    bool

	log xlog.Logger
)

// Execute builds the command tree and runs it against os.Args.
func Execute() error {
	return rootCmd().Execute()
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Thread-per-core L7 reverse proxy fleet",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log = xlog.New(xlog.Options{
				Level:     verboseLevel(flagVerbose),
				JSON:      flagJSON,
				Component: "gateway",
			})
		},
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the fleet config file (TOML or JSON)")
	root.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "enable verbose logging (multi allowed: -v, -vv)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "force JSON log output regardless of terminal detection")

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(statusCmd())

	return root
}

func verboseLevel(count int) xlog.Level {
	switch {
	case count >= 2:
		return xlog.LevelDebug
	case count == 1:
		return xlog.LevelInfo
	default:
		return xlog.LevelWarn
	}
}
