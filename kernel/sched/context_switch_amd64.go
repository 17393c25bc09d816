package sched

// contextSwitch saves prev's register state (nil on the very first switch,
// when there is nothing yet to save) and restores next's, transferring
// control to it.
func contextSwitch(prev, next *Thread)
