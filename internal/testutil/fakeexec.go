// Package testutil scripts external command invocations for tests.
package testutil

import (
	"strings"

	"k8s.io/utils/exec"
	testingexec "k8s.io/utils/exec/testing"
)

// Result is the scripted outcome of one command.
type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	Err        error
}

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Recorder collects the commands a FakeExec was asked to build.
type Recorder struct {
	Calls []Call
}

// Names returns the command names in invocation order.
func (r *Recorder) Names() []string {
	names := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		names = append(names, c.Name)
	}
	return names
}

// NewFakeExec returns a FakeExec that answers one command per result, in
// order. Running out of results panics, which fails the test.
func NewFakeExec(results ...Result) (*testingexec.FakeExec, *Recorder) {
	rec := &Recorder{}
	fake := &testingexec.FakeExec{
		LookPathFunc: func(file string) (string, error) { return file, nil },
	}
	for _, r := range results {
		r := r
		fake.CommandScript = append(fake.CommandScript, func(cmd string, args ...string) exec.Cmd {
			rec.Calls = append(rec.Calls, Call{Name: cmd, Args: append([]string{}, args...)})
			fakeCmd := &testingexec.FakeCmd{
				RunScript: []testingexec.FakeAction{
					func() ([]byte, []byte, error) {
						return []byte(r.Stdout), []byte(r.Stderr), r.err()
					},
				},
			}
			return testingexec.InitFakeCmd(fakeCmd, cmd, args...)
		})
	}
	return fake, rec
}

func (r Result) err() error {
	if r.Err != nil {
		return r.Err
	}
	if r.ExitStatus != 0 {
		return testingexec.FakeExitError{Status: r.ExitStatus}
	}
	return nil
}
