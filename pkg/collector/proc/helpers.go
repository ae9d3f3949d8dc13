package proc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/srodi/threadtop/pkg/types"
)

// procReadFile allows tests to stub reading /proc/PID/task/TID/*.
var procReadFile = os.ReadFile

// ThreadInfo resolves names and scheduler states for the given threads. A
// thread that exited in the meantime gets a "tid-N" name and no state.
func (s *Source) ThreadInfo(ids []types.ThreadID) map[types.ThreadID]types.ThreadInfo {
	infos := make(map[types.ThreadID]types.ThreadInfo, len(ids))
	for _, id := range ids {
		infos[id] = types.ThreadInfo{
			ID:    id,
			Name:  threadComm(s.pid, id),
			State: threadState(s.pid, id),
		}
	}
	return infos
}

func taskPath(pid int32, tid types.ThreadID, file string) string {
	return filepath.Join("/proc", strconv.Itoa(int(pid)), "task", strconv.FormatInt(int64(tid), 10), file)
}

func threadComm(pid int32, tid types.ThreadID) string {
	data, err := procReadFile(taskPath(pid, tid, "comm"))
	if err != nil {
		return fmt.Sprintf("tid-%d", tid)
	}
	comm := strings.TrimSpace(string(bytes.TrimRight(data, "\n")))
	if comm == "" {
		return fmt.Sprintf("tid-%d", tid)
	}
	return comm
}

// threadState extracts the state letter from /proc/PID/task/TID/stat. The
// comm field may contain spaces and parentheses, so parse after the last ')'.
func threadState(pid int32, tid types.ThreadID) string {
	data, err := procReadFile(taskPath(pid, tid, "stat"))
	if err != nil {
		return ""
	}
	end := bytes.LastIndexByte(data, ')')
	if end == -1 {
		return ""
	}
	fields := strings.Fields(string(data[end+1:]))
	if len(fields) == 0 {
		return ""
	}
	return stateName(fields[0])
}

func stateName(code string) string {
	switch code {
	case "R":
		return "RUNNING"
	case "S":
		return "SLEEPING"
	case "D":
		return "DISK_WAIT"
	case "T", "t":
		return "STOPPED"
	case "Z":
		return "ZOMBIE"
	case "X":
		return "DEAD"
	case "I":
		return "IDLE"
	default:
		return code
	}
}
