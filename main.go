package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"zemu/internal/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "zemu"
	app.Usage = "RV64IMA user-space emulator for small self-contained guest binaries"
	app.Description = "Runs a flat kernel binary (optionally with a virtio disk image) on an emulated hart with Sv39 paging, CLINT, PLIC, UART and virtio-mmio."
	app.ArgsUsage = "<kernel-binary> [<disk-image>]"
	app.Flags = cmd.Flags
	app.Action = cmd.Run

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintln(os.Stderr, "\rinterrupted")
			os.Exit(130)
		}
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
