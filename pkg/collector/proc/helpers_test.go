package proc

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/srodi/threadtop/pkg/types"
)

func TestThreadInfoReadsCommAndState(t *testing.T) {
	t.Cleanup(func() { procReadFile = os.ReadFile })

	reads := map[string]int{}
	procReadFile = func(path string) ([]byte, error) {
		reads[path]++
		switch {
		case strings.HasSuffix(path, "/proc/42/task/43/comm"):
			return []byte("http-nio-1\n"), nil
		case strings.HasSuffix(path, "/proc/42/task/43/stat"):
			return []byte("43 (http (nio) 1) R 1 2 3"), nil
		case strings.HasSuffix(path, "/proc/42/task/44/comm"):
			return []byte("  \n"), nil
		case strings.HasSuffix(path, "/proc/42/task/44/stat"):
			return []byte("44 (x) S 1"), nil
		}
		return nil, errors.New("missing")
	}

	s := &Source{pid: 42}
	infos := s.ThreadInfo([]types.ThreadID{43, 44, 45})

	if got := infos[43]; got.Name != "http-nio-1" || got.State != "RUNNING" {
		t.Fatalf("unexpected info for 43: %+v", got)
	}
	if got := infos[44]; got.Name != "tid-44" || got.State != "SLEEPING" {
		t.Fatalf("blank comm should fall back, got %+v", got)
	}
	if got := infos[45]; got.Name != "tid-45" || got.State != "" {
		t.Fatalf("vanished thread should fall back, got %+v", got)
	}
	if reads["/proc/42/task/43/comm"] != 1 {
		t.Fatalf("expected a single comm read, got %v", reads)
	}
}

func TestStateName(t *testing.T) {
	cases := map[string]string{
		"R": "RUNNING",
		"S": "SLEEPING",
		"D": "DISK_WAIT",
		"t": "STOPPED",
		"Z": "ZOMBIE",
		"W": "W",
	}
	for in, want := range cases {
		if got := stateName(in); got != want {
			t.Fatalf("stateName(%q) = %q, want %q", in, got, want)
		}
	}
}
