package fakeworker

import (
	"os"
	"os/exec"
)

// HelperEnv marks a re-executed test binary that should act as a worker.
const HelperEnv = "NDI_ACCEPTOR_FAKE_WORKER"

// RunIfHelper turns the current process into a fake worker when it was
// started by HelperCommand. Call it first thing in TestMain.
func RunIfHelper() {
	if os.Getenv(HelperEnv) != "1" {
		return
	}
	os.Exit(Main(os.Args[1:]))
}

// HelperCommand re-executes the running binary as a fake worker. The worker
// binary name is ignored. It matches the supervisor's command builder
// signature.
func HelperCommand(_ string, args ...string) *exec.Cmd {
	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = append(os.Environ(), HelperEnv+"=1")
	return cmd
}
