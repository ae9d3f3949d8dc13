package perfdata

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/srodi/threadtop/pkg/types"
)

type entry struct {
	name  string
	kind  byte
	value int64
	text  string
}

// image lays out a perfdata file the way HotSpot does: prologue, then
// entries with the name right after the header and 8-byte aligned data.
func image(order binary.ByteOrder, entries []entry) []byte {
	buf := make([]byte, prologueSize)
	binary.BigEndian.PutUint32(buf[0:], magic)
	if order == binary.LittleEndian {
		buf[4] = 1
	}
	buf[5] = 2
	buf[7] = 1
	order.PutUint32(buf[24:], prologueSize)
	order.PutUint32(buf[28:], uint32(len(entries)))

	for _, e := range entries {
		nameOff := entryHeader
		dataOff := (nameOff + len(e.name) + 1 + 7) &^ 7
		size := 8
		vector := 0
		if e.kind != typeLong {
			size = len(e.text) + 1
			vector = size
		}
		length := (dataOff + size + 7) &^ 7

		rec := make([]byte, length)
		order.PutUint32(rec[0:], uint32(length))
		order.PutUint32(rec[4:], uint32(nameOff))
		order.PutUint32(rec[8:], uint32(vector))
		rec[12] = e.kind
		order.PutUint32(rec[16:], uint32(dataOff))
		copy(rec[nameOff:], e.name)
		if e.kind == typeLong {
			order.PutUint64(rec[dataOff:], uint64(e.value))
		} else {
			copy(rec[dataOff:], e.text)
		}
		buf = append(buf, rec...)
	}
	return buf
}

func hotspotEntries() []entry {
	return []entry{
		{name: "java.property.java.vm.name", kind: 'B', text: "OpenJDK 64-Bit Server VM"},
		{name: hrtFrequency, kind: typeLong, value: 1_000_000_000},
		{name: youngInvocations, kind: typeLong, value: 12},
		{name: youngTime, kind: typeLong, value: 340_000_000},
		{name: fullInvocations, kind: typeLong, value: 1},
		{name: fullTime, kind: typeLong, value: 2_500_000_000},
		{name: safepoints, kind: typeLong, value: 40},
		{name: safepointTime, kind: typeLong, value: 90_000_000},
		{name: safepointSyncTime, kind: typeLong, value: 4_000_000},
	}
}

func TestParseBothByteOrders(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		got, err := Parse(image(order, hotspotEntries()))
		if err != nil {
			t.Fatalf("%v: %v", order, err)
		}
		if got[youngInvocations] != 12 || got[fullTime] != 2_500_000_000 {
			t.Fatalf("%v: unexpected counters %v", order, got)
		}
		if _, ok := got["java.property.java.vm.name"]; ok {
			t.Fatalf("%v: string entries must be skipped", order)
		}
	}
}

func TestParseRejectsBadImages(t *testing.T) {
	good := image(binary.LittleEndian, hotspotEntries())

	if _, err := Parse(good[:10]); !errors.Is(err, ErrInvalid) {
		t.Fatalf("short image: %v", err)
	}

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 0
	if _, err := Parse(badMagic); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad magic: %v", err)
	}

	hidden := append([]byte(nil), good...)
	hidden[7] = 0
	if _, err := Parse(hidden); !errors.Is(err, ErrNotAccessible) {
		t.Fatalf("inaccessible: %v", err)
	}

	truncated := good[:len(good)-4]
	if _, err := Parse(truncated); !errors.Is(err, ErrInvalid) {
		t.Fatalf("truncated entry: %v", err)
	}
}

func TestJVMCounters(t *testing.T) {
	raw, err := Parse(image(binary.LittleEndian, hotspotEntries()))
	if err != nil {
		t.Fatal(err)
	}
	counters, gc, safepoint := JVMCounters(raw)
	if !gc || !safepoint {
		t.Fatalf("expected both groups, gc=%v safepoint=%v", gc, safepoint)
	}
	want := map[string]int64{
		types.CounterYoungGCCount:    12,
		types.CounterYoungGCTimeMs:   340,
		types.CounterFullGCCount:     1,
		types.CounterFullGCTimeMs:    2500,
		types.CounterSafepointCount:  40,
		types.CounterSafepointTimeMs: 90,
		types.CounterSafepointSyncMs: 4,
	}
	for name, v := range want {
		if counters[name] != v {
			t.Fatalf("%s: got %d want %d", name, counters[name], v)
		}
	}

	delete(raw, safepointSyncTime)
	if _, gc, safepoint := JVMCounters(raw); !gc || safepoint {
		t.Fatalf("incomplete safepoint group should be dropped, gc=%v safepoint=%v", gc, safepoint)
	}
	delete(raw, hrtFrequency)
	if counters, gc, _ := JVMCounters(raw); gc || len(counters) != 0 {
		t.Fatalf("no tick frequency means no usable times: %v", counters)
	}
}

func TestOpenMapsFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { tempDir = func() string { return "/tmp" } })
	tempDir = func() string { return dir }

	path := Path("svc", 4242)
	if path != filepath.Join(dir, "hsperfdata_svc", "4242") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, image(binary.LittleEndian, hotspotEntries()), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.Counters()
	if err != nil || got[safepoints] != 40 {
		t.Fatalf("unexpected counters %v err %v", got, err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Counters(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("closed file should fail, got %v", err)
	}

	if _, err := Open(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
