// Package perfdata reads the hsperfdata file a HotSpot JVM publishes for
// jstat-style monitoring.
package perfdata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/edsrzf/mmap-go"
)

const (
	magic        = 0xcafec0c0
	prologueSize = 32
	entryHeader  = 20
	typeLong     = 'J'
)

var (
	// ErrInvalid is returned for data that is not a readable perfdata file.
	ErrInvalid = errors.New("invalid perfdata")
	// ErrNotAccessible is returned while the JVM has not finished
	// publishing the file.
	ErrNotAccessible = errors.New("perfdata not accessible yet")
)

// tempDir is where the JVM places hsperfdata_<user> directories. HotSpot
// ignores TMPDIR on Linux.
var tempDir = func() string { return "/tmp" }

// Path returns the perfdata file of pid run by user.
func Path(user string, pid int32) string {
	return filepath.Join(tempDir(), "hsperfdata_"+user, strconv.Itoa(int(pid)))
}

// File is a read-only mapping of one perfdata file. The JVM keeps updating
// the mapped pages, so every Counters call sees fresh values.
type File struct {
	f    *os.File
	data mmap.MMap
}

// Open maps path read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &File{f: f, data: m}, nil
}

// Counters parses every scalar long counter currently in the file.
func (p *File) Counters() (map[string]int64, error) {
	if p.data == nil {
		return nil, fmt.Errorf("%w: file closed", ErrInvalid)
	}
	return Parse(p.data)
}

// Close unmaps and closes the file.
func (p *File) Close() error {
	var err error
	if p.data != nil {
		err = p.data.Unmap()
		p.data = nil
	}
	if p.f != nil {
		err = errors.Join(err, p.f.Close())
		p.f = nil
	}
	return err
}

// Parse decodes the scalar long entries of a perfdata image. String and
// vector entries are skipped.
func Parse(data []byte) (map[string]int64, error) {
	if len(data) < prologueSize {
		return nil, fmt.Errorf("%w: %d byte prologue", ErrInvalid, len(data))
	}
	if binary.BigEndian.Uint32(data[0:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalid)
	}
	var order binary.ByteOrder = binary.BigEndian
	if data[4] == 1 {
		order = binary.LittleEndian
	}
	if major := data[5]; major != 2 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, major)
	}
	if data[7] == 0 {
		return nil, ErrNotAccessible
	}

	offset := int(int32(order.Uint32(data[24:28])))
	entries := int(int32(order.Uint32(data[28:32])))
	counters := make(map[string]int64, entries)
	for i := 0; i < entries; i++ {
		if offset < 0 || offset+entryHeader > len(data) {
			return nil, fmt.Errorf("%w: entry %d out of range", ErrInvalid, i)
		}
		length := int(int32(order.Uint32(data[offset:])))
		if length < entryHeader || offset+length > len(data) {
			return nil, fmt.Errorf("%w: entry %d has length %d", ErrInvalid, i, length)
		}
		entry := data[offset : offset+length]
		nameOff := int(int32(order.Uint32(entry[4:])))
		vector := int32(order.Uint32(entry[8:]))
		kind := entry[12]
		dataOff := int(int32(order.Uint32(entry[16:])))
		offset += length

		if kind != typeLong || vector != 0 {
			continue
		}
		if nameOff < entryHeader || nameOff >= length || dataOff < 0 || dataOff+8 > length {
			return nil, fmt.Errorf("%w: entry %d has bad offsets", ErrInvalid, i)
		}
		counters[cString(entry[nameOff:])] = int64(order.Uint64(entry[dataOff:]))
	}
	return counters, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
