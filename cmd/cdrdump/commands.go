package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ddscore/cdrx/internal/cdrstream"
	"github.com/ddscore/cdrx/internal/typedesc"
	"github.com/ddscore/cdrx/pkg/serdata"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered type names",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := registerBuiltinTypes(); err != nil {
			return err
		}
		for _, name := range typedesc.Default.List() {
			fmt.Println(name)
		}
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <type>",
	Short: "Print a registered type's resolved descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := registerBuiltinTypes(); err != nil {
			return err
		}
		desc, ok := typedesc.Default.Lookup(args[0])
		if !ok {
			return fmt.Errorf("no such registered type: %s", args[0])
		}
		fmt.Printf("name:             %s\n", desc.Name)
		fmt.Printf("extensibility:    %s\n", desc.Ops.Ext)
		fmt.Printf("nesting depth:    %d\n", desc.NestingDepth)
		fmt.Printf("min xcdr version: %d\n", desc.MinXCDRVersion)
		fmt.Printf("key fields:       %d\n", len(desc.KeysDeclOrder))
		for _, k := range desc.KeysDeclOrder {
			fmt.Printf("  - %s (member id %d)\n", k.Field.Name, k.Field.MemberID)
		}
		return nil
	},
}

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip <type>",
	Short: "Serialize a built-in sample, wrap it as serdata, and print it back",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := registerBuiltinTypes(); err != nil {
			return err
		}
		name := args[0]
		desc, ok := typedesc.Default.Lookup(name)
		if !ok {
			return fmt.Errorf("no such registered type: %s", name)
		}
		sample := sampleFor(name)
		if sample == nil {
			return fmt.Errorf("no built-in sample available for type: %s", name)
		}

		order := cdrstream.LittleEndian
		xcdrVersion := cfg.DefaultXCDRVersion
		if desc.MinXCDRVersion > xcdrVersion {
			xcdrVersion = desc.MinXCDRVersion
		}

		s, err := serdata.FromSample(desc, order, xcdrVersion, sample)
		if err != nil {
			return fmt.Errorf("serializing sample: %w", err)
		}
		defer s.Release()

		wire, err := s.ToSer()
		if err != nil {
			return fmt.Errorf("extracting wire bytes: %w", err)
		}
		fmt.Printf("wire bytes: %d (xcdr v%d, %s)\n", len(wire), xcdrVersion, order)

		back, err := serdata.FromSerWithPolicy(desc, wire, cfg.NormalizePolicy())
		if err != nil {
			return fmt.Errorf("decoding wire bytes: %w", err)
		}
		defer back.Release()

		printed, err := back.Print()
		if err != nil {
			return fmt.Errorf("printing sample: %w", err)
		}
		fmt.Println(printed)

		keyhash, usedMD5 := back.GetKeyhash()
		fmt.Printf("keyhash: %x (md5 fallback: %v)\n", keyhash, usedMD5)
		return nil
	},
}
