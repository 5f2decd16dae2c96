package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
)

const (
	// ListenFdsEnvKey holds the number of listening sockets passed by a
	// socket-activating supervisor.
	ListenFdsEnvKey = "LISTEN_FDS"
	// ListenPidEnvKey names the process the sockets are meant for.
	ListenPidEnvKey = "LISTEN_PID"
	// ListenFdsStart is the first inherited descriptor number.
	ListenFdsStart = 3
)

// ParseInheritedListenerFDs returns the descriptors handed over through
// LISTEN_FDS/LISTEN_PID. lookup reads the environment and pid is the current
// process id. No descriptors and no error are returned when the variables are
// absent or address another process.
func ParseInheritedListenerFDs(lookup func(string) string, pid int) ([]uintptr, error) {
	fdsEnv := lookup(ListenFdsEnvKey)
	if fdsEnv == "" {
		return nil, nil
	}
	if pidEnv := lookup(ListenPidEnvKey); pidEnv != "" {
		target, err := strconv.Atoi(pidEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", ListenPidEnvKey, pidEnv, err)
		}
		if target != pid {
			return nil, nil
		}
	}
	n, err := strconv.Atoi(fdsEnv)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", ListenFdsEnvKey, fdsEnv, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid negative %s value: %d", ListenFdsEnvKey, n)
	}
	fds := make([]uintptr, n)
	for i := range fds {
		fds[i] = uintptr(ListenFdsStart + i)
	}
	return fds, nil
}

// Listen returns the first inherited listener if the process was socket
// activated, otherwise a new TCP listener on address. inherited reports which
// path was taken.
func Listen(address string) (l net.Listener, inherited bool, err error) {
	fds, err := ParseInheritedListenerFDs(os.Getenv, os.Getpid())
	if err != nil {
		return nil, false, err
	}
	if len(fds) > 0 {
		l, err := NewListenerFromFD(fds[0])
		if err != nil {
			return nil, false, err
		}
		return l, true, nil
	}
	if address == "" {
		return nil, false, errors.New("no listen address configured and no inherited listener")
	}
	l, err = net.Listen("tcp", address)
	if err != nil {
		return nil, false, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return l, false, nil
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}
