package helper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/chorusbot/chorus/internal/gateway"
)

type fakePipeline struct {
	sendResults []bool
	sendCalls   int
	editResults []bool
	editCalls   int
	resets      int
	resetErr    error
	payloads    []string
}

func (f *fakePipeline) SendAs(_ context.Context, req SendRequest) bool {
	// Drain each file the way the wire does, one reader per attempt.
	for _, file := range req.Files {
		raw, _ := io.ReadAll(bytes.NewReader(file.Data))
		f.payloads = append(f.payloads, string(raw))
	}
	res := false
	if f.sendCalls < len(f.sendResults) {
		res = f.sendResults[f.sendCalls]
	}
	f.sendCalls++
	return res
}

func (f *fakePipeline) EditAs(context.Context, EditRequest) bool {
	res := false
	if f.editCalls < len(f.editResults) {
		res = f.editResults[f.editCalls]
	}
	f.editCalls++
	return res
}

func (f *fakePipeline) Reset(context.Context) error {
	f.resets++
	return f.resetErr
}

func TestDeliverSucceedsFirstAttempt(t *testing.T) {
	p := &fakePipeline{sendResults: []bool{true}}
	s := NewSupervisor(nil, p, 3)

	if !s.Deliver(context.Background(), SendRequest{ChannelID: "c"}) {
		t.Fatal("expected success")
	}
	if p.sendCalls != 1 {
		t.Fatalf("expected 1 attempt, got %d", p.sendCalls)
	}
	if p.resets != 0 {
		t.Fatalf("expected no resets, got %d", p.resets)
	}
}

func TestDeliverResetsBetweenAttempts(t *testing.T) {
	p := &fakePipeline{sendResults: []bool{false, true}}
	s := NewSupervisor(nil, p, 3)

	if !s.Deliver(context.Background(), SendRequest{ChannelID: "c"}) {
		t.Fatal("expected eventual success")
	}
	if p.sendCalls != 2 {
		t.Fatalf("expected 2 attempts, got %d", p.sendCalls)
	}
	if p.resets != 1 {
		t.Fatalf("expected 1 reset, got %d", p.resets)
	}
}

func TestDeliverAbandonsAtCeiling(t *testing.T) {
	p := &fakePipeline{sendResults: []bool{false, false, false, false}}
	s := NewSupervisor(nil, p, 3)

	if s.Deliver(context.Background(), SendRequest{ChannelID: "c"}) {
		t.Fatal("expected abandonment")
	}
	if p.sendCalls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", p.sendCalls)
	}
}

func TestDeliverRetriesWithIntactAttachments(t *testing.T) {
	p := &fakePipeline{sendResults: []bool{false, true}}
	s := NewSupervisor(nil, p, 3)

	req := SendRequest{
		ChannelID: "c",
		Files:     []gateway.File{{Name: "cat.png", Data: []byte("IMAGE-BYTES")}},
	}
	if !s.Deliver(context.Background(), req) {
		t.Fatal("expected eventual success")
	}
	if len(p.payloads) != 2 {
		t.Fatalf("expected the file on both attempts, got %d transmissions", len(p.payloads))
	}
	if p.payloads[1] != "IMAGE-BYTES" {
		t.Fatalf("retried send delivered attachment payload %q, want %q", p.payloads[1], "IMAGE-BYTES")
	}
}

func TestDeliverResetErrorDoesNotStopRetry(t *testing.T) {
	p := &fakePipeline{sendResults: []bool{false, true}, resetErr: errors.New("reconnect failed")}
	s := NewSupervisor(nil, p, 3)

	if !s.Deliver(context.Background(), SendRequest{ChannelID: "c"}) {
		t.Fatal("expected success despite failed reset")
	}
}

func TestDeliverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &fakePipeline{}
	s := NewSupervisor(nil, p, 3)

	if s.Deliver(ctx, SendRequest{ChannelID: "c"}) {
		t.Fatal("expected failure")
	}
	if p.sendCalls != 1 {
		t.Fatalf("cancelled context must stop retrying, got %d attempts", p.sendCalls)
	}
}

func TestAmendAbandonsAtCeiling(t *testing.T) {
	p := &fakePipeline{}
	s := NewSupervisor(nil, p, 2)

	if s.Amend(context.Background(), EditRequest{MessageID: "m"}) {
		t.Fatal("expected abandonment")
	}
	if p.editCalls != 2 {
		t.Fatalf("expected 2 attempts, got %d", p.editCalls)
	}
	if p.resets != 2 {
		t.Fatalf("expected a reset after each failure, got %d", p.resets)
	}
}

func TestNewSupervisorClampsCeiling(t *testing.T) {
	p := &fakePipeline{}
	s := NewSupervisor(nil, p, 0)
	s.Deliver(context.Background(), SendRequest{})
	if p.sendCalls != 3 {
		t.Fatalf("expected default ceiling of 3, got %d attempts", p.sendCalls)
	}
}
