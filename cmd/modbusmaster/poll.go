package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	modbus "github.com/hootrhino/modbus-master"
)

func newPollCmd(opts *globalOptions) *cobra.Command {
	var (
		interval time.Duration
		rounds   uint64
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Read the --config points repeatedly at a fixed interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return &modbus.ConfigError{Field: "interval", Reason: "must be positive"}
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			if len(s.config.Points) == 0 {
				return fmt.Errorf("no points configured, add a points list to the --config profile")
			}

			poller := modbus.NewPointPoller(s.master, interval)
			if err := poller.Load(s.config.Points); err != nil {
				return err
			}
			done := make(chan struct{}, 1)
			poller.SetOnData(func(readings []modbus.PointReading) {
				for _, r := range readings {
					fmt.Fprintf(os.Stdout, "%s\t%s\t%g\n", r.Time.Format(time.RFC3339), r.Tag, r.Value)
				}
				s.finish()
				s.master.ClearStatus()
				if rounds > 0 && poller.Rounds() >= rounds {
					select {
					case done <- struct{}{}:
					default:
					}
				}
			})
			poller.SetOnError(func(tag string, err error) {
				s.log.Warn().Err(err).Str("tag", tag).Str("kind", modbus.Kind(err).String()).Msg("Point read failed")
			})

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			s.log.Info().Dur("interval", interval).Int("points", len(s.config.Points)).Msg("Polling started")
			poller.Start()
			select {
			case <-sig:
			case <-done:
			}
			poller.Stop()
			s.log.Info().Uint64("rounds", poller.Rounds()).Msg("Polling stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")
	cmd.Flags().Uint64Var(&rounds, "rounds", 0, "Stop after this many rounds, 0 polls until interrupted")
	return cmd
}
