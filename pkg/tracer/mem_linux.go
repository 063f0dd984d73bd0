package tracer

import "encoding/binary"

// ReadMemory reads len(data) bytes of the process image at addr.
func (tp *TracedProcess) ReadMemory(addr uint64, data []byte) (int, error) {
	return tp.CurrentThread.ReadMemory(addr, data)
}

// WriteMemory writes data to the process image at addr.
func (tp *TracedProcess) WriteMemory(addr uint64, data []byte) (int, error) {
	return tp.CurrentThread.WriteMemory(addr, data)
}

// ReadInt reads a target int (8 bytes, little endian) at addr.
func (tp *TracedProcess) ReadInt(addr uint64) (int64, error) {
	data := make([]byte, 8)
	if _, err := tp.ReadMemory(addr, data); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

// WriteInt writes a target int (8 bytes, little endian) at addr.
func (tp *TracedProcess) WriteInt(addr uint64, val int64) error {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, uint64(val))
	_, err := tp.WriteMemory(addr, data)
	return err
}
