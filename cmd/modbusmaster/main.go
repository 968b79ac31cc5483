package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	modbus "github.com/hootrhino/modbus-master"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	opts := &globalOptions{}
	rootCmd := newRootCmd(opts)

	if err := rootCmd.Execute(); err != nil {
		reportError(newLogger(opts.verbose), err)
		os.Exit(1)
	}
}

// reportError logs a failed command once, tagged with its error kind.
func reportError(log zerolog.Logger, err error) {
	log.Error().Str("kind", modbus.Kind(err).String()).Msg(err.Error())
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modbusmaster",
		Short: "Modbus TCP/UDP master",
		Long: `modbusmaster issues single Modbus requests (FC 1, 2, 3, 4, 5, 6, 15, 16,
22 and 23) to a device over TCP or UDP and prints the decoded response.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newReadBitsCmd(opts, "read-coils", "Read coils (FC1)", modbus.FuncCodeReadCoils))
	rootCmd.AddCommand(newReadBitsCmd(opts, "read-discretes", "Read discrete inputs (FC2)", modbus.FuncCodeReadInputDiscretes))
	rootCmd.AddCommand(newReadRegistersCmd(opts, "read-registers", "Read holding registers (FC3)", modbus.FuncCodeReadMultipleRegisters))
	rootCmd.AddCommand(newReadRegistersCmd(opts, "read-input-registers", "Read input registers (FC4)", modbus.FuncCodeReadMultipleInputRegisters))
	rootCmd.AddCommand(newWriteCoilCmd(opts))
	rootCmd.AddCommand(newWriteRegisterCmd(opts))
	rootCmd.AddCommand(newWriteCoilsCmd(opts))
	rootCmd.AddCommand(newWriteRegistersCmd(opts))
	rootCmd.AddCommand(newMaskWriteCmd(opts))
	rootCmd.AddCommand(newReadWriteCmd(opts))
	rootCmd.AddCommand(newReadPointsCmd(opts))
	rootCmd.AddCommand(newPollCmd(opts))
	return rootCmd
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Str("app", "modbusmaster").
		Logger()
}
