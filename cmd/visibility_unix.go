//go:build linux || darwin || freebsd || netbsd || openbsd

package main

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// watchVisibility calls fn each time the process is resumed in the
// foreground after being stopped. A SIGCONT received while another job owns
// the terminal on fd (bg) is ignored.
func watchVisibility(ctx context.Context, fd int, fn func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGCONT)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if inForeground(fd) {
					fn()
				}
			}
		}
	}()
}

// inForeground reports whether this process group owns the terminal on fd.
// Without a controlling terminal there is no background, so it reports true.
func inForeground(fd int) bool {
	pgrp, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil {
		return true
	}
	return pgrp == unix.Getpgrp()
}
