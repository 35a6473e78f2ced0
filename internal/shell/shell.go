// Package shell implements the interactive numbered menu that drives the
// diagnostics: disk selection, confirmations and result display.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"diskinspector/internal/capacity"
	"diskinspector/internal/logging"
	"diskinspector/internal/reporting"
	"diskinspector/internal/security"
	"diskinspector/internal/smart"
	"diskinspector/internal/speed"
	"diskinspector/internal/system"
)

// ErrInvalidSelection ends the session when a disk index is not in the list.
var ErrInvalidSelection = errors.New("invalid selection")

var errQuit = errors.New("quit")

type Catalog interface {
	Enumerate(ctx context.Context) ([]system.DiskEntry, error)
}

type SmartReader interface {
	Read(ctx context.Context, device string) (*smart.Record, error)
}

type SpeedProbe interface {
	WriteThroughput(ctx context.Context, disk system.DiskEntry, sizeMB int) (*speed.Result, error)
	ReadThroughput(ctx context.Context, device string, sizeMB int) (*speed.Result, error)
}

type CapacityAuditor interface {
	Run(ctx context.Context, disk system.DiskEntry, prompter capacity.Prompter) (*capacity.Result, error)
}

// Deps are the components the menu sequences.
type Deps struct {
	Catalog  Catalog
	Smart    SmartReader
	Speed    SpeedProbe
	Capacity CapacityAuditor
	Guard    *security.Guard
	Reports  *reporting.Writer
	Logger   *logging.Logger
}

type Options struct {
	Version string
	SizeMB  int
	IsRoot  bool
	In      io.Reader
	Out     io.Writer
}

// Shell is one interactive session.
type Shell struct {
	Deps
	opts   Options
	out    io.Writer
	styles styles
	input  *lineReader
}

func New(deps Deps, opts Options) *Shell {
	if opts.SizeMB <= 0 {
		opts.SizeMB = speed.DefaultSizeMB
	}
	return &Shell{
		Deps:   deps,
		opts:   opts,
		out:    opts.Out,
		styles: newStyles(opts.Out),
	}
}

// Run shows the main menu until the operator quits, input ends or ctx is
// cancelled. It returns nil on quit or end of input, ctx.Err() on
// cancellation, and the error for enumeration failures and invalid disk
// selections, which end the session.
func (s *Shell) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	s.input = newLineReader(s.opts.In, done)

	s.printHeader()
	if !s.opts.IsRoot {
		s.println(s.styles.warn.Render("Warning: not running as root. SMART and raw read tests will use sudo; other tests may fail."))
	}
	if s.Guard.SystemDisk() == "" {
		s.println(s.styles.warn.Render("Warning: system disk unknown. Speed and capacity tests are disabled."))
	} else {
		s.printf("System disk: %s (protected)\n", s.Guard.SystemDisk())
	}

	for {
		err := s.mainMenu(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, errQuit), errors.Is(err, io.EOF):
			s.printSummary()
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.println(s.styles.fail.Render("Error: " + err.Error()))
			s.Logger.Log("ERROR", "session ended", "error", err.Error())
			return err
		}
	}
}

func (s *Shell) mainMenu(ctx context.Context) error {
	s.println()
	s.println("1. SMART information")
	s.println("2. Speed test")
	s.println("3. Capacity (counterfeit) test")
	s.println("0. Quit")

	choice, err := s.Prompt(ctx, "Select an option (0-3): ")
	if err != nil {
		return err
	}

	switch choice {
	case "1":
		return s.smartFlow(ctx)
	case "2":
		return s.speedFlow(ctx)
	case "3":
		return s.capacityFlow(ctx)
	case "0":
		return errQuit
	default:
		s.println("Invalid option, try again.")
		return nil
	}
}

// selectDisk enumerates disks, lists them and reads an index.
func (s *Shell) selectDisk(ctx context.Context) (system.DiskEntry, error) {
	disks, err := s.Catalog.Enumerate(ctx)
	if err != nil {
		return system.DiskEntry{}, err
	}

	s.println("\nAvailable disks:")
	for i, d := range disks {
		mount := "(not mounted)"
		if d.Mounted() {
			mount = d.MountPoint
		}
		line := fmt.Sprintf("%d. %s → %s  %s", i+1, d.DevicePath, mount, d.Size)
		if d.IsSystemDisk {
			line += " " + s.styles.warn.Render("[SYSTEM DISK]")
		}
		s.println(line)
	}

	answer, err := s.Prompt(ctx, "Select a disk (number): ")
	if err != nil {
		return system.DiskEntry{}, err
	}
	index, convErr := strconv.Atoi(answer)
	if convErr != nil || index < 1 || index > len(disks) {
		return system.DiskEntry{}, fmt.Errorf("%w: %q", ErrInvalidSelection, answer)
	}
	return disks[index-1], nil
}

// Prompt prints message and waits for one line of input or cancellation.
func (s *Shell) Prompt(ctx context.Context, message string) (string, error) {
	fmt.Fprint(s.out, message)
	line, err := s.input.next(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *Shell) pause(ctx context.Context) error {
	_, err := s.Prompt(ctx, "\nPress Enter to continue...")
	return err
}

func (s *Shell) printSummary() {
	if s.Reports == nil {
		return
	}
	sum := s.Reports.Summary()
	if sum.Total == 0 {
		return
	}
	s.printf("\nSession %s: %d run, %d completed, %d refused, %d cancelled, %d failed\n",
		s.Reports.RunID(), sum.Total, sum.Completed, sum.Refused, sum.Cancelled, sum.Failed)
}

func (s *Shell) println(a ...interface{}) {
	fmt.Fprintln(s.out, a...)
}

func (s *Shell) printf(format string, a ...interface{}) {
	fmt.Fprintf(s.out, format, a...)
}
