package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aqualid/internal/values"
)

func (s *settings) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the values file",
	}
	cmd.AddCommand(
		s.cacheSubcommand("selftest", "Check the consistency of the values file", func(vf *values.ValuesFile) error {
			if err := vf.SelfTest(); err != nil {
				return err
			}
			fmt.Fprintf(s.stdout, "ok: %d values\n", vf.Len())
			return nil
		}),
		s.cacheSubcommand("clear", "Forget every stored value", func(vf *values.ValuesFile) error {
			n := vf.Len()
			if err := vf.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(s.stdout, "cleared %d values\n", n)
			return nil
		}),
		s.cacheSubcommand("dump", "List the stored values", func(vf *values.ValuesFile) error {
			entries := vf.Entries()
			sort.Slice(entries, func(i, j int) bool { return entries[i].Value.Name() < entries[j].Value.Name() })

			w := tabwriter.NewWriter(s.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tCONTENT")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\n", e.Key, strings.Join(values.SplitName(e.Value.Name()), "::"), e.Value.Content())
			}
			return w.Flush()
		}),
	)
	return cmd
}

// cacheSubcommand opens the values file of the work directory around fn.
// Without a readable build file the work directory is the current one.
func (s *settings) cacheSubcommand(use, short string, fn func(vf *values.ValuesFile) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			wd, err := s.resolveWorkDir(cwd)
			if err != nil {
				return err
			}
			if s.workDir == "" {
				if p, perr := s.loadProject(); perr == nil {
					wd = p.workDir
				}
			}

			vf, err := s.openValues(wd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := vf.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return fn(vf)
		},
	}
}
