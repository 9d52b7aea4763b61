package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (s *settings) optionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Describe the options of the build file",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.loadProject()
			if err != nil {
				return err
			}
			if s.showValues {
				for _, name := range p.opts.Names() {
					v, err := p.opts.GetString(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(s.stdout, "%s = %s\n", name, v)
				}
				return nil
			}
			help := p.opts.Help()
			if help == "" {
				help = "No documented options.\n"
			}
			_, err = fmt.Fprint(s.stdout, help)
			return err
		},
	}
	cmd.Flags().BoolVar(&s.showValues, "values", false, "print every option as name = value instead of the help text")
	return cmd
}
