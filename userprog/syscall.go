package userprog

// Syscall numbers, as placed in r2 by the user-side stubs.
const (
	SCHalt      = 1
	SCExit      = 2
	SCExec      = 3
	SCJoin      = 4
	SCCreate    = 5
	SCOpen      = 6
	SCRead      = 7
	SCWrite     = 8
	SCClose     = 9
	SCFork      = 10
	SCYield     = 11
	SCPrintInt  = 30
	SCPrintChar = 31
)

// MaxFileNameLength bounds the name strings syscalls copy in from user
// memory; it matches the filesystem's path length limit (filesys.PathMaxLen).
// Components longer than filesys.FileNameMaxLen are rejected by the
// filesystem itself.
const MaxFileNameLength = 255
