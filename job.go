package testcode

import (
	"errors"
	"os/exec"
)

// Job is a transient handle to one running execution: created when the run
// command starts, discarded after Wait returns.
type Job interface {
	// Wait blocks until the job has finished and returns its exit status.
	Wait() (int, error)
}

// localJob runs a command through the shell as a child process.
type localJob struct {
	cmd *exec.Cmd
}

// startLocalJob spawns command through the shell without blocking. Spawn
// failure is an execution error, not a crash.
func startLocalJob(command string) (Job, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	if err := cmd.Start(); err != nil {
		return nil, NewRunErrorf("execution of test failed: %v", err)
	}
	return &localJob{cmd: cmd}, nil
}

func (j *localJob) Wait() (int, error) {
	err := j.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, NewRunErrorf("waiting for test failed: %v", err)
}
