//go:build !windows

package console

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// HandleSIGWINCH propagates the local terminal size to the guest PTY, once
// immediately and again on every SIGWINCH. Returns a cleanup function that
// stops the signal handler.
func HandleSIGWINCH(local, remote *os.File) func() {
	resize := func() {
		ws, err := unix.IoctlGetWinsize(int(local.Fd()), unix.TIOCGWINSZ)
		if err != nil {
			return
		}
		_ = unix.IoctlSetWinsize(int(remote.Fd()), unix.TIOCSWINSZ, ws)
	}
	resize()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	go func() {
		for range sigCh {
			resize()
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}
