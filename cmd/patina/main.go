// Command patina runs audio through an analog character chain: tube
// saturation, tape wobble, transient shaping, granular pitch shift,
// and a variable-speed vinyl buffer.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version information."`

	Render renderCmd `cmd:"" help:"Process a WAV file through the chain."`
	Demo   demoCmd   `cmd:"" help:"Play a demo tone through the chain."`
}

func main() {
	cli := &CLI{}

	ctx := kong.Parse(cli,
		kong.Name("patina"),
		kong.Description("Analog character audio processor."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func printLoudness(lufs float64) {
	fmt.Printf("short-term loudness: %.1f LUFS\n", lufs)
}
