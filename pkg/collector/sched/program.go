package sched

import "github.com/cilium/ebpf/asm"

// maxThreads bounds the per-thread switch map.
const maxThreads = 32768

// switchCounter builds a sched_switch tracepoint program that counts how
// often each thread of process tgid is switched out. At sched_switch the
// current task is the outgoing one, so bpf_get_current_pid_tgid identifies
// it without reading the tracepoint record.
func switchCounter(mapFD int, tgid int32) asm.Instructions {
	return asm.Instructions{
		asm.FnGetCurrentPidTgid.Call(),
		asm.Mov.Reg(asm.R6, asm.R0),
		asm.RSh.Imm(asm.R6, 32),
		asm.JNE.Imm(asm.R6, tgid, "exit"),

		// key: tid (low 32 bits), initial value: 1
		asm.StoreMem(asm.RFP, -8, asm.R0, asm.Word),
		asm.StoreImm(asm.RFP, -16, 1, asm.DWord),

		asm.LoadMapPtr(asm.R1, mapFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -8),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "insert"),
		asm.Mov.Imm(asm.R1, 1),
		asm.StoreXAdd(asm.R0, asm.R1, asm.DWord),
		asm.Ja.Label("exit"),

		asm.LoadMapPtr(asm.R1, mapFD).WithSymbol("insert"),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -8),
		asm.Mov.Reg(asm.R3, asm.RFP),
		asm.Add.Imm(asm.R3, -16),
		asm.Mov.Imm(asm.R4, 0), // BPF_ANY
		asm.FnMapUpdateElem.Call(),

		asm.Mov.Imm(asm.R0, 0).WithSymbol("exit"),
		asm.Return(),
	}
}
