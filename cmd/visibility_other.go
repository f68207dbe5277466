//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package main

import "context"

// watchVisibility is a no-op where job control signals do not exist.
// Prompt input still counts as the user coming back.
func watchVisibility(ctx context.Context, fd int, fn func()) {}
