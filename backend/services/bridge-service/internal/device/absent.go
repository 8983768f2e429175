package device

type absentLink struct{}

// Absent returns the degraded link used when no device could be opened.
// Reads and writes report ErrDeviceAbsent and never touch hardware.
func Absent() Link {
	return absentLink{}
}

func (absentLink) ReadLine() ([]byte, error)  { return nil, ErrDeviceAbsent }
func (absentLink) WriteCommand(Command) error { return ErrDeviceAbsent }
func (absentLink) ResetInput() error          { return nil }
func (absentLink) Present() bool              { return false }
func (absentLink) Close() error               { return nil }
