package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func newWriteCoilCmd(opts *globalOptions) *cobra.Command {
	var reference string
	var value bool
	cmd := &cobra.Command{
		Use:   "write-coil",
		Short: "Write a single coil (FC5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseUint16(reference)
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()
			if err := s.master.WriteSingleCoil(s.unit, ref, value); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "ref", "0", "Coil reference")
	cmd.Flags().BoolVar(&value, "value", false, "Coil state")
	return cmd
}

func newWriteRegisterCmd(opts *globalOptions) *cobra.Command {
	var reference string
	var value int
	cmd := &cobra.Command{
		Use:   "write-register",
		Short: "Write a single holding register (FC6)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseUint16(reference)
			if err != nil {
				return err
			}
			if value < -32768 || value > 65535 {
				return fmt.Errorf("register value %d out of range -32768..65535", value)
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()
			if err := s.master.WriteSingleRegister(s.unit, ref, int16(uint16(value))); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "ref", "0", "Register reference")
	cmd.Flags().IntVar(&value, "value", 0, "Register value")
	return cmd
}

func newWriteCoilsCmd(opts *globalOptions) *cobra.Command {
	var reference, values string
	cmd := &cobra.Command{
		Use:   "write-coils",
		Short: "Write consecutive coils (FC15)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseUint16(reference)
			if err != nil {
				return err
			}
			bits, err := parseBools(values)
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()
			if err := s.master.WriteMultipleCoils(s.unit, ref, bits); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "OK, %d coils written\n", len(bits))
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "ref", "0", "Start reference")
	cmd.Flags().StringVar(&values, "values", "", "Comma separated coil states, e.g. 1,0,1")
	return cmd
}

func newWriteRegistersCmd(opts *globalOptions) *cobra.Command {
	var reference, values, types string
	cmd := &cobra.Command{
		Use:   "write-registers",
		Short: "Write consecutive holding registers (FC16)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseUint16(reference)
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
			if err := s.master.WriteMultipleRegister(s.unit, ref, vals); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "OK, %d values written\n", len(vals))
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "ref", "0", "Start reference")
	cmd.Flags().StringVar(&values, "values", "", "Comma separated values")
	cmd.Flags().StringVar(&types, "types", "", "Comma separated INT|DINT|REAL, one per value (default INT)")
	return cmd
}

func newMaskWriteCmd(opts *globalOptions) *cobra.Command {
	var reference, andMask, orMask string
	cmd := &cobra.Command{
		Use:   "mask-write",
		Short: "Mask write a holding register (FC22)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseUint16(reference)
			if err != nil {
				return err
			}
			and, err := parseUint16(andMask)
			if err != nil {
				return err
			}
			or, err := parseUint16(orMask)
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			defer s.finish()
			if err := s.master.MaskWriteRegister(s.unit, ref, and, or); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "OK, and=%s or=%s\n", strconv.FormatUint(uint64(and), 16), strconv.FormatUint(uint64(or), 16))
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "ref", "0", "Register reference")
	cmd.Flags().StringVar(&andMask, "and", "0xFFFF", "AND mask")
	cmd.Flags().StringVar(&orMask, "or", "0x0000", "OR mask")
	return cmd
}
