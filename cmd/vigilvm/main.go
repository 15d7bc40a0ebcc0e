// Command vigilvm is the embedding CLI: it loads a binary image and
// runs it to completion, mirroring the shape of cmd/vm in the teacher
// repo (flag-parse, load, execute, report). Images produced purely by
// vigilc assemble carry no symbol table, so this front end is only
// able to run programs that stick to the register/control-flow core
// and never touch Field/Call{Sym,ObjSym} — a real embedder wires its
// own compiler output (instructions plus a symtab.Tables) directly
// against pkg/vm instead of going through this CLI.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vigilvm/vigil/pkg/heap"
	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/symtab"
	"github.com/vigilvm/vigil/pkg/vm"
)

func main() {
	log.SetFlags(0)
	app := &cli.App{
		Name:  "vigilvm",
		Usage: "load a vigil image and run it to completion",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "stack", Value: 256, Usage: "register stack size (slots) for the main fiber"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "print the final result code to stderr"},
		},
		ArgsUsage: "IMAGE",
		Action:    run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: vigilvm [--stack N] [-v] IMAGE", 1)
	}

	f, err := os.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := isa.LoadImage(f)
	if err != nil {
		return err
	}

	arena := heap.New(c.Bool("verbose"))
	tables := symtab.NewTables(0, 0, 0)
	machine, err := vm.New(arena, tables, img.Instrs, img.Consts, img.Statics, c.Int("stack"))
	if err != nil {
		return err
	}

	result, info, err := machine.Run()
	if err != nil {
		return err
	}
	if c.Bool("verbose") {
		fmt.Fprintf(os.Stderr, "vigilvm: result=%s\n", result)
	}
	if result == vm.Panic {
		return cli.Exit(fmt.Sprintf("vigilvm: uncaught panic: %s", info.Message), 2)
	}
	return nil
}
