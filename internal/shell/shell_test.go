package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskinspector/internal/capacity"
	"diskinspector/internal/config"
	"diskinspector/internal/logging"
	"diskinspector/internal/reporting"
	"diskinspector/internal/security"
	"diskinspector/internal/smart"
	"diskinspector/internal/speed"
	"diskinspector/internal/system"
	"diskinspector/internal/testutil"
)

type fakeCatalog struct {
	disks []system.DiskEntry
	err   error
	calls int
}

func (c *fakeCatalog) Enumerate(context.Context) ([]system.DiskEntry, error) {
	c.calls++
	return c.disks, c.err
}

type fakeSmart struct {
	record *smart.Record
	err    error
}

func (f *fakeSmart) Read(_ context.Context, device string) (*smart.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec := *f.record
	rec.Device = device
	return &rec, nil
}

type fakeSpeed struct {
	writes, reads []string
	readErr       error
}

func (f *fakeSpeed) WriteThroughput(_ context.Context, disk system.DiskEntry, sizeMB int) (*speed.Result, error) {
	f.writes = append(f.writes, disk.DevicePath)
	return &speed.Result{Operation: "write", Device: disk.DevicePath, SizeMB: sizeMB, MBps: 88.5}, nil
}

func (f *fakeSpeed) ReadThroughput(_ context.Context, device string, sizeMB int) (*speed.Result, error) {
	f.reads = append(f.reads, device)
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &speed.Result{Operation: "read", Device: device, SizeMB: sizeMB, MBps: 120.25}, nil
}

type fakeAuditor struct {
	answer string
	result *capacity.Result
}

func (f *fakeAuditor) Run(ctx context.Context, disk system.DiskEntry, prompter capacity.Prompter) (*capacity.Result, error) {
	answer, err := prompter.Prompt(ctx, "Type 'YES' to start: ")
	if err != nil {
		return nil, err
	}
	f.answer = answer
	return f.result, nil
}

var testDisks = []system.DiskEntry{
	{DevicePath: "/dev/sda", MountPoint: "/boot/efi", Size: "238.5G", IsSystemDisk: true},
	{DevicePath: "/dev/sdb", MountPoint: "/media/usb", Size: "14.9G"},
	{DevicePath: "/dev/sdc", Size: "1.8T"},
}

func newTestShell(input string, deps Deps) (*Shell, *bytes.Buffer) {
	out := &bytes.Buffer{}
	if deps.Catalog == nil {
		deps.Catalog = &fakeCatalog{disks: testDisks}
	}
	if deps.Guard == nil {
		deps.Guard = security.NewGuard("/dev/sda", nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Reports == nil {
		deps.Reports = reporting.NewWriter(config.ReportingConfig{}, "test")
	}
	return New(deps, Options{Version: "test", SizeMB: 64, IsRoot: true, In: strings.NewReader(input), Out: out}), out
}

func TestQuit(t *testing.T) {
	s, out := newTestShell("0\n", Deps{})
	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "Disk Inspector vtest")
	assert.Contains(t, out.String(), "System disk: /dev/sda")
}

func TestEndOfInputEndsSession(t *testing.T) {
	s, _ := newTestShell("", Deps{})
	assert.NoError(t, s.Run(context.Background()))
}

func TestInvalidOptionReprompts(t *testing.T) {
	s, out := newTestShell("7\nabc\n0\n", Deps{})
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 2, strings.Count(out.String(), "Invalid option"))
	assert.Equal(t, 3, strings.Count(out.String(), "Select an option"))
}

func TestInvalidDiskIndexEndsSession(t *testing.T) {
	for _, answer := range []string{"0", "4", "x"} {
		t.Run(answer, func(t *testing.T) {
			s, _ := newTestShell("1\n"+answer+"\n", Deps{Smart: &fakeSmart{record: &smart.Record{}}})
			err := s.Run(context.Background())
			assert.ErrorIs(t, err, ErrInvalidSelection)
		})
	}
}

func TestEnumerationFailureEndsSession(t *testing.T) {
	catalog := &fakeCatalog{err: system.ErrNoDisks}
	s, out := newTestShell("2\n", Deps{Catalog: catalog})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, system.ErrNoDisks)
	assert.Contains(t, out.String(), "no disks available")
}

func TestDiskListing(t *testing.T) {
	s, out := newTestShell("1\n3\n\n0\n", Deps{Smart: &fakeSmart{record: &smart.Record{Model: "X"}}})
	require.NoError(t, s.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "1. /dev/sda → /boot/efi")
	assert.Contains(t, text, "[SYSTEM DISK]")
	assert.Contains(t, text, "2. /dev/sdb → /media/usb")
	assert.Contains(t, text, "3. /dev/sdc → (not mounted)")
}

func TestSmartFlow(t *testing.T) {
	// SMART reads are allowed on the system disk.
	s, out := newTestShell("1\n1\n\n0\n", Deps{Smart: &fakeSmart{record: &smart.Record{Model: "Samsung SSD 870", DiskType: "SSD"}}})
	require.NoError(t, s.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Samsung SSD 870")
	assert.Contains(t, text, "Unknown")
	assert.Contains(t, text, "Press Enter to continue")
	assert.Equal(t, 1, s.Reports.Summary().Completed)
}

func TestSmartFlowFailure(t *testing.T) {
	s, out := newTestShell("1\n2\n\n0\n", Deps{Smart: &fakeSmart{err: errors.New("smartctl exited with status 2")}})
	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "SMART read failed: smartctl exited with status 2")
	assert.Equal(t, 1, s.Reports.Summary().Failed)
}

func TestSpeedFlow(t *testing.T) {
	probe := &fakeSpeed{}
	s, out := newTestShell("2\n2\n\n2\n3\n\n0\n", Deps{Speed: probe})
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{"/dev/sdb"}, probe.writes)
	assert.Equal(t, []string{"/dev/sdb", "/dev/sdc"}, probe.reads)

	text := out.String()
	assert.Contains(t, text, "Write speed: 88.50 MB/s")
	assert.Contains(t, text, "Read speed: 120.25 MB/s")
	assert.Contains(t, text, "Write test skipped: no mounted partition")
}

func TestSpeedFlowReadFailure(t *testing.T) {
	probe := &fakeSpeed{readErr: errors.New("dd exited with status 1: Permission denied")}
	s, out := newTestShell("2\n3\n\n0\n", Deps{Speed: probe})
	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "Read test failed: dd exited with status 1: Permission denied")
	assert.Equal(t, 1, s.Reports.Summary().Failed)
}

func TestSpeedRefusedWhenSystemDiskUnknown(t *testing.T) {
	probe := &fakeSpeed{}
	s, out := newTestShell("2\n2\n\n0\n", Deps{Speed: probe, Guard: security.NewGuard("", nil)})
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, probe.writes)
	assert.Empty(t, probe.reads)
	assert.Contains(t, out.String(), "system disk unknown")
	assert.Contains(t, out.String(), "Speed tests skipped")
}

func TestCapacityFlowVerdicts(t *testing.T) {
	cases := []struct {
		verdict capacity.Verdict
		want    string
	}{
		{capacity.VerdictCounterfeit, "COUNTERFEIT"},
		{capacity.VerdictGenuine, "GENUINE"},
		{capacity.VerdictIndeterminate, "INDETERMINATE"},
		{capacity.VerdictCancelled, "Operation cancelled."},
	}

	for _, c := range cases {
		t.Run(string(c.verdict), func(t *testing.T) {
			auditor := &fakeAuditor{result: &capacity.Result{Verdict: c.verdict}}
			s, out := newTestShell("3\n2\nYES\n\n0\n", Deps{Capacity: auditor})
			require.NoError(t, s.Run(context.Background()))
			assert.Equal(t, "YES", auditor.answer)
			assert.Contains(t, out.String(), c.want)
		})
	}
}

func TestCapacityFlowCleanupReport(t *testing.T) {
	auditor := &fakeAuditor{result: &capacity.Result{
		Verdict: capacity.VerdictGenuine,
		Cleanup: &capacity.CleanupReport{
			Removed: []string{"/media/usb/1.h2w"},
			Failed:  []capacity.CleanupFailure{{Path: "/media/usb/2.h2w", Error: "permission denied"}},
		},
	}}
	s, out := newTestShell("3\n2\nYES\n\n0\n", Deps{Capacity: auditor})
	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, out.String(), "Removed 1 test file(s).")
	assert.Contains(t, out.String(), "Could not remove /media/usb/2.h2w: permission denied")
}

func TestCancelWhileWaitingForInput(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	out := &bytes.Buffer{}
	s := New(Deps{
		Catalog: &fakeCatalog{disks: testDisks},
		Guard:   security.NewGuard("/dev/sda", nil),
		Logger:  logging.NewNop(),
	}, Options{In: r, Out: out, IsRoot: false})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not observe cancellation")
	}
	assert.Contains(t, out.String(), "not running as root")
}

// Only the system disk is listed: speed and capacity are refused and no
// external tool other than lsblk runs.
func TestSystemDiskOnlyEndToEnd(t *testing.T) {
	const onlySystemDisk = `{"blockdevices": [
		{"name":"sda", "mountpoint":null, "type":"disk", "size":"238.5G",
		 "children": [{"name":"sda1", "mountpoint":"/", "type":"part", "size":"238G"}]}
	]}`
	fake, rec := testutil.NewFakeExec(
		testutil.Result{Stdout: onlySystemDisk},
		testutil.Result{Stdout: onlySystemDisk},
	)
	tools := system.NewToolchain(map[string]string{
		system.ToolLsblk: "lsblk", system.ToolDf: "df", system.ToolDd: "dd",
		system.ToolF3Write: "f3write", system.ToolF3Read: "f3read", system.ToolSmartctl: "smartctl",
	})
	logger := logging.NewNop()
	guard := security.NewGuard("/dev/sda", nil)
	escalator := security.NewEscalator("sudo", true)
	out := &bytes.Buffer{}

	s := New(Deps{
		Catalog:  system.NewCatalog(fake, tools, guard, logger),
		Smart:    smart.NewReader(fake, tools, escalator, logger),
		Speed:    speed.NewProbe(fake, tools, guard, escalator, ".speed_test_temp_file.bin", logger),
		Capacity: capacity.NewAuditor(fake, tools, guard, system.NewSpaceProbe(fake, tools, logger), []string{"[0-9]*.h2w"}, out, logger),
		Guard:    guard,
		Reports:  reporting.NewWriter(config.ReportingConfig{}, "test"),
		Logger:   logger,
	}, Options{In: strings.NewReader("2\n1\n\n3\n1\n\n0\n"), Out: out, IsRoot: true})

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []string{"lsblk", "lsblk"}, rec.Names())
	text := out.String()
	assert.Contains(t, text, "Speed tests skipped: this is the system disk")
	assert.Contains(t, text, "Capacity test refused: this is the system disk")
	assert.Equal(t, reporting.Summary{Total: 2, Refused: 2}, s.Reports.Summary())
}

// ttySharingSmart stands in for a sudo child that reads a password from the
// same terminal as the menu while the SMART read runs.
type ttySharingSmart struct {
	r, w *os.File
	got  string
	err  error
}

func (f *ttySharingSmart) Read(context.Context, string) (*smart.Record, error) {
	if _, err := f.w.WriteString("hunter2\n"); err != nil {
		return nil, err
	}
	_ = f.r.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := f.r.Read(buf)
	f.got, f.err = string(buf[:n]), err
	_ = f.r.SetReadDeadline(time.Time{})

	// answers for the pause and the main menu that follow
	if _, err := f.w.WriteString("\n0\n"); err != nil {
		return nil, err
	}
	return &smart.Record{Model: "X"}, nil
}

func TestChildProcessKeepsTerminalInput(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	child := &ttySharingSmart{r: r, w: w}
	_, err = w.WriteString("1\n1\n")
	require.NoError(t, err)

	out := &bytes.Buffer{}
	s := New(Deps{
		Catalog: &fakeCatalog{disks: testDisks},
		Smart:   child,
		Guard:   security.NewGuard("/dev/sda", nil),
		Logger:  logging.NewNop(),
	}, Options{In: r, Out: out, IsRoot: true})

	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, child.err)
	assert.Equal(t, "hunter2\n", child.got, "input typed while a command runs belongs to the command")
	assert.Contains(t, out.String(), "Model:")
}

// countingReader records how many times input was read.
type countingReader struct {
	reads int
	data  []string
}

func (c *countingReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	c.reads++
	n := copy(p, c.data[0])
	c.data = c.data[1:]
	return n, nil
}

func TestLineReaderReadsOnlyOnRequest(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	in := &countingReader{data: []string{"first\n", "second\n"}}
	lr := newLineReader(in, done)

	line, err := lr.next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", line)
	assert.Equal(t, 1, in.reads, "no read ahead of the next request")

	line, err = lr.next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = lr.next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	_, err = lr.next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
