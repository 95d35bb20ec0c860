package host

import "golang.org/x/sys/unix"

// Ready performs a zero-timeout poll(2) of hostFD against events,
// returning the revents mask that fired (spec.md §4.2's non-blocking
// readiness check for read/write, and §4.2/§5's poll(2) support). A
// zero-timeout poll never suspends the caller's OS thread, which matters
// since the whole core runs cooperatively on one thread.
func Ready(hostFD int, events int16) int16 {
	pfd := []unix.PollFd{{Fd: int32(hostFD), Events: events}}
	n, err := unix.Poll(pfd, 0)
	if err != nil || n == 0 {
		return 0
	}
	return pfd[0].Revents
}

// ReadyMulti polls every (hostFD, events) pair at once for poll(2)/select
// support, returning the revents for each in the same order.
func ReadyMulti(fds []int32, events []int16) []int16 {
	pfds := make([]unix.PollFd, len(fds))
	for i := range fds {
		pfds[i] = unix.PollFd{Fd: fds[i], Events: events[i]}
	}
	_, err := unix.Poll(pfds, 0)
	out := make([]int16, len(fds))
	if err != nil {
		return out
	}
	for i := range pfds {
		out[i] = pfds[i].Revents
	}
	return out
}
