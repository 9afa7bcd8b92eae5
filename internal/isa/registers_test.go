package isa

import "testing"

func TestParseRegister(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Register
		wantErr bool
	}{
		{name: "x register", in: "x19", want: X19},
		{name: "w view maps to x", in: "w3", want: X3},
		{name: "upper case", in: "X0", want: X0},
		{name: "stack pointer", in: "sp", want: SP},
		{name: "frame pointer alias", in: "fp", want: X29},
		{name: "link register alias", in: "lr", want: X30},
		{name: "zero register", in: "wzr", want: XZR},
		{name: "out of range", in: "x31", wantErr: true},
		{name: "garbage", in: "r0", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRegister(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRegister(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRegister(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRegister(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCallerSavedRegisters(t *testing.T) {
	regs := CallerSavedRegisters()
	if len(regs) != 19 {
		t.Fatalf("got %d caller-saved registers, want 19", len(regs))
	}
	for i, r := range regs {
		if r != Register(i) {
			t.Errorf("regs[%d] = %v, want x%d", i, r, i)
		}
	}

	for _, r := range []Register{X19, X28, FP, LR} {
		if Class(r) != CalleeSaved {
			t.Errorf("Class(%v) = %v, want callee-saved", r, Class(r))
		}
	}
	if Class(SP) != Special {
		t.Errorf("Class(sp) = %v, want special", Class(SP))
	}

	// The returned slice is a copy.
	regs[0] = X20
	if CallerSavedRegisters()[0] != X0 {
		t.Error("CallerSavedRegisters returned shared storage")
	}
}

func TestWidth(t *testing.T) {
	tests := []struct {
		dt   DataType
		want int
		ok   bool
	}{
		{Byte, 1, true},
		{Word, 2, true},
		{Dword, 4, true},
		{Qword, 8, true},
		{Oword, 0, false},
		{Unknown, 0, false},
	}
	for _, tt := range tests {
		got, ok := Width(tt.dt)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Width(%v) = %d, %v; want %d, %v", tt.dt, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOperandString(t *testing.T) {
	tests := []struct {
		op   Operand
		want string
	}{
		{RegOp(X1, Qword), "x1"},
		{RegOp(X1, Dword), "w1"},
		{RegOp(SP, Qword), "sp"},
		{MemOp(X0, 0, Qword), "[x0]"},
		{MemOp(X0, 8, Qword), "[x0,#8]"},
		{ImmOp(16), "#0x10"},
		{Operand{}, "-"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
