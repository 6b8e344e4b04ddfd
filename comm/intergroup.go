package comm

import (
	"context"
	"fmt"
)

// InterGroup is the Go stand-in for an MPI intercommunicator: it joins
// two disjoint Groups (a "local" side and a "remote" side) so that ranks
// on one side can address ranks on the other by local rank number. The
// async I/O runtime (ioasync) uses one InterGroup per compute component
// to talk to the shared pool of I/O-task goroutines, mirroring the
// source library's compute/IO intercommunicator split.
type InterGroup struct {
	local  *Group
	remote *Group

	// bridge[i][j] carries messages from local rank i to remote rank j.
	bridge [][]chan frame
	// reverse[j][i] carries messages from remote rank j to local rank i.
	reverse [][]chan frame
}

// NewInterGroup joins a local and a remote Group into one InterGroup.
func NewInterGroup(local, remote *Group) *InterGroup {
	ig := &InterGroup{local: local, remote: remote}
	ig.bridge = make([][]chan frame, local.Size())
	for i := range ig.bridge {
		ig.bridge[i] = make([]chan frame, remote.Size())
		for j := range ig.bridge[i] {
			ig.bridge[i][j] = make(chan frame, 1)
		}
	}
	ig.reverse = make([][]chan frame, remote.Size())
	for j := range ig.reverse {
		ig.reverse[j] = make([]chan frame, local.Size())
		for i := range ig.reverse[j] {
			ig.reverse[j][i] = make(chan frame, 1)
		}
	}
	return ig
}

// LocalSize returns the number of ranks on the local side.
func (ig *InterGroup) LocalSize() int { return ig.local.Size() }

// RemoteSize returns the number of ranks on the remote side.
func (ig *InterGroup) RemoteSize() int { return ig.remote.Size() }

// SendToRemote sends data from local rank `from` to remote rank `to`.
func (ig *InterGroup) SendToRemote(ctx context.Context, from, to, tag int, data []byte) error {
	if from < 0 || from >= ig.local.Size() || to < 0 || to >= ig.remote.Size() {
		return fmt.Errorf("comm: intergroup rank out of range (local=%d, remote=%d)", from, to)
	}
	select {
	case ig.bridge[from][to] <- frame{tag: tag, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecvFromLocal blocks until remote rank `to` receives a message sent by
// local rank `from`.
func (ig *InterGroup) RecvFromLocal(ctx context.Context, from, to int) ([]byte, error) {
	select {
	case f := <-ig.bridge[from][to]:
		return f.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendToLocal sends data from remote rank `from` to local rank `to`,
// the reply direction (I/O task answering a compute task's RPC).
func (ig *InterGroup) SendToLocal(ctx context.Context, from, to, tag int, data []byte) error {
	if from < 0 || from >= ig.remote.Size() || to < 0 || to >= ig.local.Size() {
		return fmt.Errorf("comm: intergroup rank out of range (remote=%d, local=%d)", from, to)
	}
	select {
	case ig.reverse[from][to] <- frame{tag: tag, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecvFromRemote blocks until local rank `to` receives a reply sent by
// remote rank `from`.
func (ig *InterGroup) RecvFromRemote(ctx context.Context, from, to int) ([]byte, error) {
	select {
	case f := <-ig.reverse[from][to]:
		return f.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
