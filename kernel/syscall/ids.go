package syscall

// Memory system calls.
const (
	MemoryGetPageSize  uint16 = 100
	MemoryAllocatePage uint16 = 101
	MemoryFreePage     uint16 = 102
)

// Threading system calls.
const (
	ThreadingMutexCreate           uint16 = 200
	ThreadingMutexLock             uint16 = 201
	ThreadingMutexUnlock           uint16 = 202
	ThreadingMutexRelease          uint16 = 203
	ThreadingGetThreadID           uint16 = 204
	ThreadingSetThreadControlBlock uint16 = 205
)

// VFS system calls.
const (
	VFSGetNodeInfo          uint16 = 300
	VFSCreate               uint16 = 301
	VFSOpen                 uint16 = 302
	VFSDelete               uint16 = 303
	VFSClose                uint16 = 304
	VFSRead                 uint16 = 305
	VFSWrite                uint16 = 306
	VFSSeek                 uint16 = 307
	VFSDirectoryStreamOpen  uint16 = 308
	VFSDirectoryStreamNext  uint16 = 309
	VFSDirectoryStreamClose uint16 = 310
)

// App system calls.
const (
	AppReadStdIn              uint16 = 400
	AppWriteStdOut            uint16 = 401
	AppWriteStdErr            uint16 = 402
	AppStart                  uint16 = 403
	AppExit                   uint16 = 404
	AppJoin                   uint16 = 405
	AppGetWorkingDirectory    uint16 = 406
	AppChangeWorkingDirectory uint16 = 407
)

// Status is the signed result a handler returns: zero or positive values
// are call-specific success payloads (a count, an ID, a page address),
// negative values name a failure.
type Status int64

const (
	StatusOkay         Status = 0
	StatusBadArg       Status = -1
	StatusUnknownID    Status = -2
	StatusNodeNotFound Status = -3
	StatusFault        Status = -4
	StatusNodeIsFile   Status = -5
	StatusIO           Status = -6
)
