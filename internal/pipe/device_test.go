package pipe

import (
	"testing"

	"github.com/wine-np/npserver/internal/status"
)

func newTestDevice() *Device {
	return NewDevice()
}

func basicCreateReq(name string) CreateNamedPipeRequest {
	return CreateNamedPipeRequest{
		Name:         name,
		Sharing:      ShareRead | ShareWrite,
		MaxInstances: 2,
		InSize:       4096,
		OutSize:      4096,
	}
}

func TestCreateNamedPipeFirstInstance(t *testing.T) {
	d := newTestDevice()
	handle, st := d.CreateNamedPipe(basicCreateReq(`\test`))
	if st != status.Success {
		t.Fatalf("expected Success, got %v", st)
	}
	if handle == 0 {
		t.Fatal("expected a non-zero handle")
	}

	info, st := d.GetInfo(handle)
	if st != status.Success {
		t.Fatalf("GetInfo failed: %v", st)
	}
	if info.Instances != 1 {
		t.Fatalf("expected 1 instance, got %d", info.Instances)
	}
	if info.Flags&FlagServerEnd == 0 {
		t.Fatal("expected GetInfo on a server handle to report FlagServerEnd")
	}
}

func TestCreateNamedPipeRejectsBadSharing(t *testing.T) {
	d := newTestDevice()
	req := basicCreateReq(`\test`)
	req.Sharing = 0
	if _, st := d.CreateNamedPipe(req); st != status.InvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", st)
	}
}

func TestCreateNamedPipeSecondInstanceMustMatchSharing(t *testing.T) {
	d := newTestDevice()
	d.CreateNamedPipe(basicCreateReq(`\test`))

	req := basicCreateReq(`\test`)
	req.Sharing = ShareRead
	if _, st := d.CreateNamedPipe(req); st != status.AccessDenied {
		t.Fatalf("expected AccessDenied for mismatched sharing, got %v", st)
	}
}

func TestCreateNamedPipeRespectsMaxInstances(t *testing.T) {
	d := newTestDevice()
	req := basicCreateReq(`\test`)
	req.MaxInstances = 1
	if _, st := d.CreateNamedPipe(req); st != status.Success {
		t.Fatalf("first instance should succeed, got %v", st)
	}
	if _, st := d.CreateNamedPipe(req); st != status.InstanceNotAvailable {
		t.Fatalf("expected InstanceNotAvailable, got %v", st)
	}
}

func TestOpenFileConnectsToAnIdleServerWithoutListen(t *testing.T) {
	// Real named-pipe semantics let a client connect to an idle server
	// instance before the server ever calls Listen; ConnectNamedPipe on
	// the server side would simply observe ERROR_PIPE_CONNECTED.
	d := newTestDevice()
	serverHandle, _ := d.CreateNamedPipe(basicCreateReq(`\test`))

	if _, st := d.OpenFile(`\test`, 0, 0); st != status.Success {
		t.Fatalf("expected Success connecting to an idle server, got %v", st)
	}
	s, _ := d.serverFor(serverHandle)
	if s.state != StateConnected {
		t.Fatalf("expected connected_server, got %v", s.state)
	}
}

func TestOpenFileFailsWhenNoServerIsAvailable(t *testing.T) {
	d := newTestDevice()
	req := basicCreateReq(`\test`)
	req.MaxInstances = 1
	d.CreateNamedPipe(req)

	if _, st := d.OpenFile(`\test`, 0, 0); st != status.Success {
		t.Fatalf("expected the first connect to succeed, got %v", st)
	}
	if _, st := d.OpenFile(`\test`, 0, 0); st != status.PipeNotAvailable {
		t.Fatalf("expected PipeNotAvailable once the only instance is connected, got %v", st)
	}
}

func TestOpenFileUnknownName(t *testing.T) {
	d := newTestDevice()
	if _, st := d.OpenFile(`\nope`, 0, 0); st != status.ObjectNameInvalid {
		t.Fatalf("expected ObjectNameInvalid, got %v", st)
	}
}

func TestListenThenOpenFileConnects(t *testing.T) {
	d := newTestDevice()
	serverHandle, _ := d.CreateNamedPipe(basicCreateReq(`\test`))

	if _, st := d.Listen(serverHandle); st != status.Pending {
		t.Fatalf("expected Pending from Listen, got %v", st)
	}

	clientHandle, st := d.OpenFile(`\test`, 0, 0)
	if st != status.Success {
		t.Fatalf("expected Success, got %v", st)
	}
	if clientHandle == 0 {
		t.Fatal("expected a non-zero client handle")
	}

	info, _ := d.GetInfo(serverHandle)
	if info.Instances != 1 {
		t.Fatalf("expected 1 instance, got %d", info.Instances)
	}
}

func TestSetInfoRejectsReadOnlyBits(t *testing.T) {
	d := newTestDevice()
	handle, _ := d.CreateNamedPipe(basicCreateReq(`\test`))

	if st := d.SetInfo(handle, FlagServerEnd); st != status.InvalidParameter {
		t.Fatalf("expected InvalidParameter for a non-writable bit, got %v", st)
	}
}

func TestSetInfoMessageReadRequiresMessageWritePipe(t *testing.T) {
	d := newTestDevice()
	handle, _ := d.CreateNamedPipe(basicCreateReq(`\test`)) // byte-mode pipe

	if st := d.SetInfo(handle, FlagMessageStreamRead); st != status.InvalidParameter {
		t.Fatalf("expected InvalidParameter, got %v", st)
	}
}
