package ioasync

import (
	"bytes"
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/core/concurrency"
)

func TestIoServerDispatchesRegisteredHandler(t *testing.T) {
	defer goleak.VerifyNone(t)

	computeGroup := comm.NewGroup(1)
	ioGroup := comm.NewGroup(1)
	ig := comm.NewInterGroup(computeGroup, ioGroup)

	server := NewIoServer(ig)
	server.Register(MsgPutVars, func(ctx context.Context, payload []byte) ([]byte, error) {
		out := make([]byte, len(payload))
		for i, b := range payload {
			out[i] = b + 1
		}
		return out, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(ctx) }()

	client := &ComputeClient{Group: computeGroup, IG: ig}
	reply, err := client.Call(ctx, 0, MsgPutVars, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !bytes.Equal(reply, []byte{2, 3, 4}) {
		t.Fatalf("reply = %v, want [2 3 4]", reply)
	}

	if err := client.Exit(ctx, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestIoServerCallWithNoHandlerReturnsError(t *testing.T) {
	defer goleak.VerifyNone(t)

	computeGroup := comm.NewGroup(1)
	ioGroup := comm.NewGroup(1)
	ig := comm.NewInterGroup(computeGroup, ioGroup)
	server := NewIoServer(ig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(ctx) }()

	client := &ComputeClient{Group: computeGroup, IG: ig}
	if _, err := client.Call(ctx, 0, MsgGetVars, nil); err == nil {
		t.Fatal("expected error for unregistered handler, got nil")
	}

	if err := client.Exit(ctx, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	<-serverErr
}

func TestIoServerDispatchesViaSharedExecutor(t *testing.T) {
	defer goleak.VerifyNone(t)

	computeGroup := comm.NewGroup(1)
	ioGroup := comm.NewGroup(1)
	ig := comm.NewInterGroup(computeGroup, ioGroup)

	exec := concurrency.NewExecutor(2, -1)
	defer exec.Close()

	server := NewIoServer(ig)
	server.Executor = exec
	server.Register(MsgGetVars, func(ctx context.Context, payload []byte) ([]byte, error) {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(ctx) }()

	client := &ComputeClient{Group: computeGroup, IG: ig}
	reply, err := client.Call(ctx, 0, MsgGetVars, []byte("payload"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !bytes.Equal(reply, []byte("payload")) {
		t.Fatalf("reply = %q, want %q", reply, "payload")
	}

	if err := client.Exit(ctx, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestStopTerminatesBlockedServer(t *testing.T) {
	defer goleak.VerifyNone(t)

	computeGroup := comm.NewGroup(1)
	ioGroup := comm.NewGroup(1)
	ig := comm.NewInterGroup(computeGroup, ioGroup)
	server := NewIoServer(ig)

	done := make(chan struct{})
	go func() {
		server.Run(context.Background())
		close(done)
	}()

	// Give Run a moment to reach its blocking receive before Stop.
	time.Sleep(20 * time.Millisecond)
	server.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
