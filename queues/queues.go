// Package queues talks to external cluster queueing systems through a
// narrow two-command contract: a submit command which prints a job id and a
// status command whose exit code says whether that job id still exists.
package queues

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultPollInterval is how often the status command is polled while
// waiting for a submitted job to finish.
const DefaultPollInterval = 60 * time.Second

// System describes one queueing system. The status command is expected to
// exit zero while the job id still exists and non-zero once it is gone.
type System struct {
	SubmitCmd string
	StatusCmd string
}

var systems = map[string]System{
	"PBS": {SubmitCmd: "qsub", StatusCmd: "qstat"},
}

// Register adds a queueing system so it can be selected by name. Intended
// for additional two-command backends; the built-in is PBS.
func Register(name string, sys System) {
	systems[name] = sys
}

// Lookup returns the queueing system registered under name.
func Lookup(name string) (System, bool) {
	sys, ok := systems[name]
	return sys, ok
}

// Job is a handle to one submitted queue job.
type Job struct {
	system       System
	submitFile   string
	jobID        string
	pollInterval time.Duration
}

// NewJob creates a job that will be submitted via the named queueing
// system using the given submit file.
func NewJob(submitFile, systemName string) (*Job, error) {
	sys, ok := Lookup(systemName)
	if !ok {
		return nil, fmt.Errorf("queueing system not implemented: %s", systemName)
	}
	return &Job{
		system:       sys,
		submitFile:   submitFile,
		pollInterval: DefaultPollInterval,
	}, nil
}

// SetPollInterval overrides the status-poll interval.
func (j *Job) SetPollInterval(interval time.Duration) {
	j.pollInterval = interval
}

// JobID returns the id the queue assigned on submission.
func (j *Job) JobID() string { return j.jobID }

// CreateSubmitFile writes the submit script: the template file is read and
// every occurrence of pattern is replaced by commands.
func (j *Job) CreateSubmitFile(pattern, commands, template string) error {
	tmpl, err := os.ReadFile(template)
	if err != nil {
		return fmt.Errorf("submit file template does not exist: %s: %w", template, err)
	}
	submit := strings.ReplaceAll(string(tmpl), pattern, commands)
	if err := os.WriteFile(j.submitFile, []byte(submit), 0o644); err != nil {
		return fmt.Errorf("failed to write submit file %s: %w", j.submitFile, err)
	}
	return nil
}

// Start submits the job to the queue and records the returned job id.
func (j *Job) Start() error {
	args := append(strings.Fields(j.system.SubmitCmd), j.submitFile)
	out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("error submitting job: %s: %w", strings.TrimSpace(string(out)), err)
	}
	j.jobID = strings.TrimSpace(string(out))
	if j.jobID == "" {
		return fmt.Errorf("error submitting job: queue returned no job id")
	}
	return nil
}

// Wait returns once the job has finished running on the cluster, detected
// by the status command first exiting non-zero for the job id. The exit
// status of the job itself is not visible through the queue contract, so
// Wait always reports zero on completion.
func (j *Job) Wait() (int, error) {
	if j.jobID == "" {
		return 0, fmt.Errorf("job has not been submitted")
	}
	args := append(strings.Fields(j.system.StatusCmd), j.jobID)
	for {
		time.Sleep(j.pollInterval)
		err := exec.Command(args[0], args[1:]...).Run()
		if err == nil {
			// Job id still known to the queue; keep polling.
			continue
		}
		if _, ok := err.(*exec.ExitError); ok {
			// Queue no longer knows the job id: it has finished one way or
			// the other.
			return 0, nil
		}
		return 0, fmt.Errorf("error polling queue: %w", err)
	}
}
