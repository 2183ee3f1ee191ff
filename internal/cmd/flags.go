package cmd

import "github.com/urfave/cli/v2"

var (
	LogLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "trace, debug, info, warn, error, or crit",
		Value: "info",
	}
	CPUProfileFlag = &cli.BoolFlag{
		Name:  "cpuprofile",
		Usage: "write a CPU profile of the run to ./cpu.pprof",
	}
	DiskFlag = &cli.PathFlag{
		Name:  "disk",
		Usage: "alternative to the second positional argument: path to the virtio disk image",
	}
)

// Flags is the complete flag set zemu's single action accepts.
var Flags = []cli.Flag{
	LogLevelFlag,
	CPUProfileFlag,
	DiskFlag,
}
