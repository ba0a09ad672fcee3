// Command bpfscriptc is the command-line front end for bpfscript: it
// compiles a script and prints its instructions or bytecode, and it can
// list the types a BTF blob inflates into, exercising the same
// ingestion path a caller would use to populate a type database before
// compiling against it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf/btf"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arcjustin/bpfscript/compiler"
	"github.com/arcjustin/bpfscript/types"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

func main() {
	root := &cobra.Command{
		Use:   "bpfscriptc",
		Short: "Compile bpfscript programs to BPF-flavored bytecode",
	}

	root.AddCommand(newCompileCommand(), newBTFTypesCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newCompileCommand() *cobra.Command {
	var printBytecode bool

	cmd := &cobra.Command{
		Use:   "compile <script-file>",
		Short: "Compile a script and print its instructions or bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			db := types.NewDatabase()
			addBaseIntegerTypes(db)

			c := compiler.Create(db)
			if err := c.Compile(string(source)); err != nil {
				return err
			}

			if printBytecode {
				words, err := c.GetBytecode()
				if err != nil {
					return err
				}
				for _, w := range words {
					fmt.Printf("0x%016x\n", w)
				}
				return nil
			}

			for _, ins := range c.GetInstructions() {
				fmt.Printf("%v\n", ins)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printBytecode, "bytecode", false, "print raw bytecode words instead of disassembled instructions")
	return cmd
}

func newBTFTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "btf-types <btf-blob>",
		Short: "Ingest a BTF blob and list the resulting type database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			spec, err := btf.LoadSpecFromReader(f)
			if err != nil {
				return err
			}

			db := types.NewDatabase()
			if err := db.AddBTFTypes(spec); err != nil {
				return err
			}

			log.Info().Str("blob", args[0]).Msg("ingested BTF types")
			for id := 0; ; id++ {
				ty, ok := db.GetTypeByID(id)
				if !ok {
					break
				}
				fmt.Printf("%d: kind=%s size=%d refs=%d\n", id, ty.Kind, ty.Size(), ty.NumRefs)
			}
			return nil
		},
	}
}

// addBaseIntegerTypes registers the integer primitives nearly every
// script needs, matching the set the original Rust crate's own examples
// set up by hand before compiling against a fresh database.
func addBaseIntegerTypes(db *types.Database) {
	db.AddInteger("u8", 1, false)
	db.AddInteger("i8", 1, true)
	db.AddInteger("u16", 2, false)
	db.AddInteger("i16", 2, true)
	db.AddInteger("u32", 4, false)
	db.AddInteger("i32", 4, true)
	db.AddInteger("u64", 8, false)
	db.AddInteger("i64", 8, true)
}
