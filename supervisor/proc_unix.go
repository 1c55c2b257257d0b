//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the worker in its own process group so helper
// processes it forks are signalled with it, and so a terminal interrupt
// reaches the harness only.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGTERM)
}

func kill(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil {
		// Fall back to the leader alone if the group is already gone.
		return cmd.Process.Signal(sig)
	}
	return nil
}
