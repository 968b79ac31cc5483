package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newReadPointsCmd(opts *globalOptions) *cobra.Command {
	var keepGoing bool
	cmd := &cobra.Command{
		Use:   "read-points",
		Short: "Read every point listed in the --config profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()
			if len(s.config.Points) == 0 {
				return fmt.Errorf("no points configured, add a points list to the --config profile")
			}

			var failed int
			for _, p := range s.config.Points {
				v, err := s.master.ReadPoint(p)
				if err != nil {
					s.log.Warn().Err(err).Str("tag", p.Tag).Msg("Point read failed")
					if !keepGoing {
						return err
					}
					failed++
					continue
				}
				fmt.Fprintf(os.Stdout, "%s\t%g\n", p.Tag, v)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d points failed", failed, len(s.config.Points))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "Continue with the next point after a failure")
	return cmd
}
