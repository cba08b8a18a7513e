// Package machine defines the contract between the kernel and the simulated
// MIPS CPU. The CPU itself (instruction decode, register file, address
// translation) lives outside this module; the kernel sees it through the CPU
// interface and the constants here.
package machine

// Memory geometry. A virtual page is the size of a disk sector so that
// paging in is a single sector read.
const (
	PageSize     = 128
	NumPhysPages = 32
	MemorySize   = NumPhysPages * PageSize
	TLBSize      = 4
)

// Register numbers, MIPS convention plus the simulator's bookkeeping
// registers.
const (
	NumGPRegs = 32

	StackReg     = 29
	RetAddrReg   = 31
	HiReg        = 32
	LoReg        = 33
	PCReg        = 34
	NextPCReg    = 35
	PrevPCReg    = 36
	LoadReg      = 37
	LoadValueReg = 38
	BadVAddrReg  = 39

	NumTotalRegs = 40
)

// Trap-frame convention: syscall number in r2, arguments in r4..r7, result
// written back to r2.
const (
	SyscallNumReg = 2
	SyscallRetReg = 2
	SyscallArg1   = 4
	SyscallArg2   = 5
	SyscallArg3   = 6
	SyscallArg4   = 7
)

type ExceptionType int

const (
	NoException ExceptionType = iota
	SyscallException
	PageFaultException
	ReadOnlyException
	BusErrorException
	AddressErrorException
	OverflowException
	IllegalInstrException
)

// TranslationEntry is one virtual-to-physical page mapping. The
// authoritative copy lives in the owning address space's page table; the TLB
// holds non-owning copies.
type TranslationEntry struct {
	VirtualPage  int
	PhysicalPage int
	Valid        bool
	ReadOnly     bool
	Use          bool // set by the CPU on any access
	Dirty        bool // set by the CPU on a store
}

// CPU is the simulated processor, provided by the machine simulator.
type CPU interface {
	ReadRegister(num int) int
	WriteRegister(num int, value int)

	// ReadMem and WriteMem access user virtual memory one value at a time
	// (size 1, 2 or 4 bytes); they return false if translation failed, in
	// which case the access raised an exception and should be retried after
	// the fault is handled.
	ReadMem(addr int, size int) (int, bool)
	WriteMem(addr int, size int, value int) bool

	// MainMemory is the physical memory array, indexed by
	// ppn*PageSize + offset. The kernel writes program pages here.
	MainMemory() []byte

	// Run starts executing user instructions on the current address space
	// and does not return until the running thread finishes or switches.
	Run()
}
