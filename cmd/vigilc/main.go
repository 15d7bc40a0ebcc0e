// Command vigilc is the assemble/disassemble/single-step front end
// for vigil images, mirroring cmd/asm's assembler and cmd/interp's
// step loop in the teacher repo, but built around urfave/cli/v2's
// subcommand dispatch (SPEC_FULL.md §2) instead of raw flag, so the
// three modes share flag parsing and -h output.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vigilvm/vigil/pkg/isa"
	"github.com/vigilvm/vigil/pkg/trace"
)

func main() {
	log.SetFlags(0)
	app := &cli.App{
		Name:  "vigilc",
		Usage: "assemble, disassemble and single-step vigil bytecode images",
		Commands: []*cli.Command{
			assembleCmd,
			disasmCmd,
			stepCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var assembleCmd = &cli.Command{
	Name:      "assemble",
	Usage:     "assemble a source file into a binary image",
	ArgsUsage: "SOURCE OUTPUT",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("usage: vigilc assemble SOURCE OUTPUT", 1)
		}
		src, err := os.Open(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer src.Close()

		var instrs []isa.Instr
		for ie := range isa.StartAssembler(src) {
			if ie.Error != nil {
				return ie.Error
			}
			instrs = append(instrs, ie.Instr)
		}

		out, err := os.Create(c.Args().Get(1))
		if err != nil {
			return err
		}
		defer out.Close()
		return isa.SaveImage(out, &isa.Image{Instrs: instrs})
	},
}

var disasmCmd = &cli.Command{
	Name:      "disasm",
	Usage:     "disassemble a binary image to stdout",
	ArgsUsage: "IMAGE",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "color", Usage: "colorize by opcode class"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: vigilc disasm IMAGE", 1)
		}
		img, err := loadImageFile(c.Args().Get(0))
		if err != nil {
			return err
		}
		for pc, in := range img.Instrs {
			var text string
			if c.Bool("color") {
				text = trace.ColorizeDisasm(in)
			} else {
				text = isa.Disassemble(in)
			}
			fmt.Printf("%4d: %s\n", pc, text)
		}
		return nil
	},
}

var stepCmd = &cli.Command{
	Name:      "step",
	Usage:     "disassemble a binary image one instruction at a time, waiting for Enter between each",
	ArgsUsage: "IMAGE",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: vigilc step IMAGE", 1)
		}
		img, err := loadImageFile(c.Args().Get(0))
		if err != nil {
			return err
		}
		reader := make([]byte, 1)
		for pc, in := range img.Instrs {
			fmt.Printf("%4d: %s\n", pc, trace.ColorizeDisasm(in))
			os.Stdin.Read(reader)
		}
		return nil
	},
}

func loadImageFile(path string) (*isa.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return isa.LoadImage(f)
}
