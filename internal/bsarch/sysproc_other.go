//go:build !windows

package bsarch

import "os/exec"

func hideWindow(*exec.Cmd) {}
