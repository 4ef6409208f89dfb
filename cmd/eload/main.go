// cmd/eload/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/corecode/lab/internal/device"
)

// Exit status.
const (
	exitOK          = 0
	exitFailure     = 1
	exitTransport   = 2
	exitProtocol    = 3
	exitUnsupported = 4
	// 128 + SIGINT, as shells report it
	exitInterrupted = 130
)

func main() {
	// SIGINT/SIGTERM cancel the run; the enable guard powers the input down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil && !errors.Is(err, errInterrupted) {
		klog.ErrorS(err, "eload: failed")
	}
	klog.Flush()
	os.Exit(exitCode(err))
}

// exitCode maps the error chain onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errInterrupted) {
		return exitInterrupted
	}

	var unsupported *device.UnsupportedModelError
	if errors.As(err, &unsupported) {
		return exitUnsupported
	}
	var proto *device.ProtocolError
	if errors.As(err, &proto) {
		return exitProtocol
	}
	var transport *device.TransportError
	if errors.As(err, &transport) {
		return exitTransport
	}

	return exitFailure
}
