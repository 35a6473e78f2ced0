package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskinspector/internal/config"
	"diskinspector/internal/testutil"
)

func TestResolveTools(t *testing.T) {
	fake, rec := testutil.NewFakeExec(testutil.Result{
		Stdout: "smartctl 7.3 2022-02-28 r5338 [x86_64-linux-6.1.0] (local build)\nCopyright (C) 2002-22, Bruce Allen\n",
	})
	fake.LookPathFunc = func(file string) (string, error) {
		if file == "f3read" || file == "f3write" {
			return "", errors.New("executable file not found in $PATH")
		}
		return "/usr/bin/" + file, nil
	}

	tools := ResolveTools(context.Background(), fake, config.Default().Tools)

	path, err := tools.Path(ToolLsblk)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/lsblk", path)

	_, err = tools.Path(ToolF3Read)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.ErrorIs(t, tools.Require(ToolLsblk, ToolF3Write), ErrMissingDependency)
	assert.NoError(t, tools.Require(ToolLsblk, ToolDf, ToolDd, ToolSmartctl))

	require.Len(t, rec.Calls, 1)
	assert.Equal(t, "/usr/bin/smartctl --version", rec.Calls[0].String())

	statuses := tools.Statuses()
	require.Len(t, statuses, 7)
	assert.Equal(t, ToolLsblk, statuses[0].Name)
	assert.Equal(t, "7.3", statuses[3].Version)
	assert.Error(t, statuses[4].Err)
}

func TestResolveToolsOldSmartctl(t *testing.T) {
	fake, _ := testutil.NewFakeExec(testutil.Result{Stdout: "smartctl 6.6 2016-05-31 r4324 [x86_64-linux]\n"})

	tools := ResolveTools(context.Background(), fake, config.Default().Tools)
	_, err := tools.Path(ToolSmartctl)
	require.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "6.6")
}

func TestResolveToolsEmptyName(t *testing.T) {
	cfg := config.Default().Tools
	cfg.Sudo = ""
	fake, _ := testutil.NewFakeExec(testutil.Result{Stdout: "smartctl 7.4 2023-08-01 r5530\n"})

	tools := ResolveTools(context.Background(), fake, cfg)
	_, err := tools.Path(ToolSudo)
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestToolErrorMessage(t *testing.T) {
	err := &ToolError{Tool: "dd", ExitStatus: 1, Stderr: "dd: error writing: No space left on device\n"}
	assert.Equal(t, "dd exited with status 1: dd: error writing: No space left on device", err.Error())

	err = &ToolError{Tool: "f3write", ExitStatus: 2}
	assert.Equal(t, "f3write exited with status 2", err.Error())

	err = &ToolError{Tool: "lsblk", ExitStatus: -1, Err: errors.New("executable file not found")}
	assert.Equal(t, "lsblk failed: executable file not found", err.Error())
}
