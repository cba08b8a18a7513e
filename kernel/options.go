package kernel

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mit-pdos/go-nachos/thread"
)

// FsCmd is a filesystem utility command run at kernel startup.
type FsCmd int

const (
	FsNone FsCmd = iota
	FsPut
	FsMkdir
	FsList
	FsRemove
	FsPrint
	FsCat
)

// MaxUserPrograms bounds how many user programs -e can queue.
const MaxUserPrograms = 5

type Options struct {
	SchedulerType thread.SchedulerType
	Preemptive    bool

	DebugUserProg bool
	Programs      []string

	Format     bool
	FsCmd      FsCmd
	LocalPath  string
	NachosPath string

	// DiskPath is a file-backed disk image; empty means an in-memory disk.
	DiskPath string

	Debug uint64
}

const usageText = `usage: nachos [options]
  -s              single step user programs
  -e <path>       queue a user program (up to 5)
  -format         format the disk
  -put <host> <nachos>  import a host file
  -mkdir <path>   make a directory
  -ls <path>      list a directory
  -rm <path>      remove a file
  -p              print the whole disk
  -cat <path>     print a file
  -disk <path>    file-backed disk image (default: in-memory)
  -sched <type>   FCFS | RR | Priority | SJF (default FCFS)
  -preemptive     preemptive scheduling
  -debug <level>  debug verbosity
  -u              this message
`

// ParseArgs decodes the command line. Errors in the argument list are fatal:
// there is no one to return them to before the kernel exists.
func ParseArgs(argv []string) Options {
	opts := Options{SchedulerType: thread.FCFS}
	need := func(i int, n int, flag string) {
		if i+n >= len(argv) {
			fmt.Fprintf(os.Stderr, "nachos: %s needs %d argument(s)\n", flag, n)
			os.Exit(2)
		}
	}
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "-s":
			opts.DebugUserProg = true
		case "-e":
			need(i, 1, "-e")
			if len(opts.Programs) < MaxUserPrograms {
				opts.Programs = append(opts.Programs, argv[i+1])
			}
			i++
		case "-format":
			opts.Format = true
		case "-put":
			need(i, 2, "-put")
			opts.LocalPath = argv[i+1]
			opts.NachosPath = argv[i+2]
			opts.FsCmd = FsPut
			i += 2
		case "-mkdir":
			need(i, 1, "-mkdir")
			opts.NachosPath = argv[i+1]
			opts.FsCmd = FsMkdir
			i++
		case "-ls":
			need(i, 1, "-ls")
			opts.NachosPath = argv[i+1]
			opts.FsCmd = FsList
			i++
		case "-rm":
			need(i, 1, "-rm")
			opts.NachosPath = argv[i+1]
			opts.FsCmd = FsRemove
			i++
		case "-p":
			opts.FsCmd = FsPrint
		case "-cat":
			need(i, 1, "-cat")
			opts.NachosPath = argv[i+1]
			opts.FsCmd = FsCat
			i++
		case "-disk":
			need(i, 1, "-disk")
			opts.DiskPath = argv[i+1]
			i++
		case "-sched":
			need(i, 1, "-sched")
			switch argv[i+1] {
			case "FCFS":
				opts.SchedulerType = thread.FCFS
			case "RR":
				opts.SchedulerType = thread.RR
			case "Priority":
				opts.SchedulerType = thread.Priority
			case "SJF":
				opts.SchedulerType = thread.SJF
			default:
				fmt.Fprintf(os.Stderr, "nachos: unknown scheduler %q\n", argv[i+1])
				os.Exit(2)
			}
			i++
		case "-preemptive":
			opts.Preemptive = true
		case "-debug":
			need(i, 1, "-debug")
			level, err := strconv.ParseUint(argv[i+1], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "nachos: bad debug level %q\n", argv[i+1])
				os.Exit(2)
			}
			opts.Debug = level
			i++
		case "-u":
			fmt.Fprint(os.Stderr, usageText)
		default:
			fmt.Fprintf(os.Stderr, "nachos: unknown flag %q\n%s", argv[i], usageText)
			os.Exit(2)
		}
	}
	return opts
}
