package pipe

import "github.com/wine-np/npserver/internal/status"

// PeekResult mirrors FSCTL_PIPE_PEEK's reply (spec.md §6).
type PeekResult struct {
	NamedPipeState    uint32
	ReadDataAvailable uint32
	NumberOfMessages  uint32
	MessageLength     uint32
	Data              []byte
}

// Peek implements FSCTL_PIPE_PEEK: message-mode only, it reports the next
// unread message's length and a copy of its bytes without consuming it.
// NamedPipeState and NumberOfMessages are left at zero, matching a gap the
// original server itself never closed (spec.md §9): filling them in would
// need a live NT state enum and an exact queued-message count this
// subsystem doesn't track per the original's own admission that no caller
// relies on either field.
func (d *Device) Peek(handle uint64, maxSize int) (PeekResult, status.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, st := d.endFor(handle)
	if st != status.Success {
		return PeekResult{}, st
	}
	if !e.useServerIO() {
		return PeekResult{}, status.NotSupported
	}
	if len(e.msgQueue) == 0 {
		if e.connection == nil {
			return PeekResult{}, status.PipeDisconnected
		}
		return PeekResult{ReadDataAvailable: 0}, status.Success
	}

	m := e.msgQueue[0]
	remaining := m.remaining()
	n := remaining
	if n > maxSize {
		n = maxSize
	}
	result := PeekResult{
		ReadDataAvailable: uint32(remaining),
		MessageLength:     uint32(remaining),
		Data:              m.iosb.InData[m.readPos : m.readPos+n],
	}
	return result, status.Success
}
