package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"zemu/internal/system"
)

// Run is zemu's single CLI action: `zemu <kernel-binary> [<disk-image>]`.
// Argument parsing and file loading sit outside the emulator core — they
// produce the flat byte buffers the core actually consumes.
func Run(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: zemu <kernel-binary> [<disk-image>]", 1)
	}
	kernelPath := c.Args().Get(0)
	diskPath := c.Args().Get(1)
	if diskPath == "" {
		diskPath = c.Path(DiskFlag.Name)
	}

	if c.Bool(CPUProfileFlag.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	lvl, err := ParseLevel(c.String(LogLevelFlag.Name))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	logger := Logger(os.Stderr, lvl)

	kernelImage, err := os.ReadFile(kernelPath)
	if err != nil {
		return cli.Exit(fmt.Errorf("failed to read kernel binary %q: %w", kernelPath, err), 1)
	}

	var diskImage []byte
	if diskPath != "" {
		diskImage, err = os.ReadFile(diskPath)
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to read disk image %q: %w", diskPath, err), 1)
		}
	}

	logger.Info("loaded guest images", "kernel", kernelPath, "kernelBytes", len(kernelImage), "disk", diskPath, "diskBytes", len(diskImage))

	sys := system.New(kernelImage, diskImage, os.Stdout)
	sys.StartUART(os.Stdin)

	err = sys.Run(c.Context, logger)
	switch {
	case err == nil:
		return nil
	case err == context.Canceled, err == context.DeadlineExceeded:
		// Let the top-level signal handler in main.go report this.
		return err
	case err == system.ErrFatalTrap:
		return cli.Exit(err.Error(), 2)
	default:
		return cli.Exit(err.Error(), 1)
	}
}
