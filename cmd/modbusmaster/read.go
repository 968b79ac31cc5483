package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	modbus "github.com/hootrhino/modbus-master"
)

type readFlags struct {
	reference string
	quantity  uint16
	format    string
	swap      bool
}

func (f *readFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.reference, "ref", "0", "Start reference, decimal or 0x hex")
	cmd.Flags().Uint16Var(&f.quantity, "qty", 1, "Number of items to read")
}

func newReadBitsCmd(opts *globalOptions, use, short string, fc modbus.FunctionCode) *cobra.Command {
	flags := &readFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseUint16(flags.reference)
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()

			read := s.master.ReadCoils
			if fc == modbus.FuncCodeReadInputDiscretes {
				read = s.master.ReadInputDiscretes
			}
			bits, err := read(s.unit, ref, flags.quantity)
			if err != nil {
				return err
			}
			for i, b := range bits {
				v := 0
				if b {
					v = 1
				}
				fmt.Fprintf(os.Stdout, "%d\t%d\n", int(ref)+i, v)
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func newReadRegistersCmd(opts *globalOptions, use, short string, fc modbus.FunctionCode) *cobra.Command {
	flags := &readFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseUint16(flags.reference)
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()

			read := s.master.ReadMultipleRegisters
			if fc == modbus.FuncCodeReadMultipleInputRegisters {
				read = s.master.ReadMultipleInputRegisters
			}
			data, err := read(s.unit, ref, flags.quantity)
			if err != nil {
				return err
			}
			return printRegisters(ref, data, flags.format, flags.swap, s.master.Endianness)
		},
	}
	flags.bind(cmd)
	bindFormatFlags(cmd, flags)
	return cmd
}

func bindFormatFlags(cmd *cobra.Command, flags *readFlags) {
	cmd.Flags().StringVar(&flags.format, "format", "int", "Output format: raw|int|uint|dint|real|string")
	cmd.Flags().BoolVar(&flags.swap, "swap-bytes", false, "Swap byte pairs when --format=string")
}

func printRegisters(ref uint16, data []byte, format string, swap bool, e modbus.Endianness) error {
	format = strings.ToLower(format)
	switch format {
	case "raw":
		fmt.Fprintf(os.Stdout, "% x\n", data)
	case "string":
		fmt.Fprintln(os.Stdout, modbus.RegisterString(data, swap))
	case "int", "uint":
		for i := 0; i < len(data)/2; i++ {
			if format == "uint" {
				v, err := modbus.RegisterUint(data, i)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%d\t%d\n", int(ref)+i, v)
				continue
			}
			v, err := modbus.RegisterInt(data, i)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%d\t%d\n", int(ref)+i, v)
		}
	case "dint", "real":
		for i := 0; i+1 < len(data)/2; i += 2 {
			if format == "real" {
				v, err := modbus.RegisterReal(data, i, e)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%d\t%g\n", int(ref)+i, v)
				continue
			}
			v, err := modbus.RegisterDInt(data, i, e)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%d\t%d\n", int(ref)+i, v)
		}
	default:
		return &modbus.ConfigError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
	}
	return nil
}

func newReadWriteCmd(opts *globalOptions) *cobra.Command {
	var (
		readRef, writeRef string
		quantity          uint16
		values, types     string
		flags             = &readFlags{}
	)
	cmd := &cobra.Command{
		Use:   "read-write",
		Short: "Write then read holding registers in one transaction (FC23)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rRef, err := parseUint16(readRef)
			if err != nil {
				return err
			}
			wRef, err := parseUint16(writeRef)
			if err != nil {
				return err
			}
			vals, err := parseValues(values, types)
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()

			data, err := s.master.ReadWriteRegisters(s.unit, rRef, quantity, wRef, vals)
			if err != nil {
				return err
			}
			return printRegisters(rRef, data, flags.format, flags.swap, s.master.Endianness)
		},
	}
	cmd.Flags().StringVar(&readRef, "read-ref", "0", "Read start reference")
	cmd.Flags().Uint16Var(&quantity, "qty", 1, "Number of registers to read")
	cmd.Flags().StringVar(&writeRef, "write-ref", "0", "Write start reference")
	cmd.Flags().StringVar(&values, "values", "", "Comma separated values to write")
	cmd.Flags().StringVar(&types, "types", "", "Comma separated INT|DINT|REAL, one per value (default INT)")
	bindFormatFlags(cmd, flags)
	return cmd
}
