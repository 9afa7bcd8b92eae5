package cmd

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"structflow/internal/dataflow"
	"structflow/internal/image"
	"structflow/internal/isa"
	"structflow/internal/report"
)

func TestParseSeed(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantAt  string
		want    dataflow.RegisterState
		wantErr bool
	}{
		{name: "single", spec: "0x1000:x0=0x90", wantAt: "0x1000", want: dataflow.RegisterState{isa.X0: 0x90}},
		{name: "several", spec: "0x1000:x0=8,x19=-16", wantAt: "0x1000", want: dataflow.RegisterState{isa.X0: 8, isa.X19: -16}},
		{name: "symbol with scope", spec: "ns::f:x1=0", wantAt: "ns::f", want: dataflow.RegisterState{isa.X1: 0}},
		{name: "w register aliases x", spec: "0x10:w2=4", wantAt: "0x10", want: dataflow.RegisterState{isa.X2: 4}},
		{name: "no colon", spec: "0x1000", wantErr: true},
		{name: "no assignment", spec: "0x1000:", wantErr: true},
		{name: "missing equals", spec: "0x1000:x0", wantErr: true},
		{name: "bad register", spec: "0x1000:q9=0", wantErr: true},
		{name: "bad delta", spec: "0x1000:x0=zz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at, regs, err := parseSeed(tt.spec)
			if tt.wantErr {
				if !errors.Is(err, errBadSeed) {
					t.Fatalf("err = %v, want errBadSeed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSeed: %v", err)
			}
			if at != tt.wantAt {
				t.Errorf("at = %q, want %q", at, tt.wantAt)
			}
			if len(regs) != len(tt.want) {
				t.Fatalf("regs = %v, want %v", regs, tt.want)
			}
			for r, d := range tt.want {
				if regs[r] != d {
					t.Errorf("regs[%s] = %#x, want %#x", r, regs[r], d)
				}
			}
		})
	}
}

// blob writes "ldr x2, [x0, #8]; ret" and an empty config file.
func blob(t *testing.T) (code, config string) {
	t.Helper()
	dir := t.TempDir()
	var b []byte
	b = binary.LittleEndian.AppendUint32(b, 0xf9400402)
	b = binary.LittleEndian.AppendUint32(b, 0xd65f03c0)
	code = filepath.Join(dir, "code.bin")
	if err := os.WriteFile(code, b, 0o644); err != nil {
		t.Fatal(err)
	}
	config = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(config, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return code, config
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestResolve(t *testing.T) {
	s := &session{
		img: image.NewMemory(0x1000, make([]byte, 0x40), []image.Symbol{
			{Name: "_ZN9IOService5startEPS_", Addr: 0x1000},
			{Name: "_ZN9IOService4stopEPS_", Addr: 0x1010},
			{Name: "_ZN9IOService4stopEv", Addr: 0x1020},
			{Name: "plain", Addr: 0x1030},
		}),
		names: image.NewDemangler(),
	}

	tests := []struct {
		spec    string
		want    uint64
		wantErr bool
	}{
		{spec: "0x1008", want: 0x1008},
		{spec: "plain", want: 0x1030},
		{spec: "_ZN9IOService5startEPS_", want: 0x1000},
		{spec: "IOService::start(IOService*)", want: 0x1000},
		{spec: "IOService::start", want: 0x1000},
		{spec: "IOService::stop()", want: 0x1020},
		{spec: "IOService::stop", want: 0x1010},
		{spec: "IOService", wantErr: true},
		{spec: "IOService::free", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := s.resolve(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolve(%q) = %#x, want error", tt.spec, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve(%q): %v", tt.spec, err)
			}
			if got != tt.want {
				t.Errorf("resolve(%q) = %#x, want %#x", tt.spec, got, tt.want)
			}
		})
	}
}

func TestAccessesCommand(t *testing.T) {
	code, config := blob(t)
	common := []string{"--config", config, "--no-color", "--base", "0x1000"}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "explicit seed",
			args: []string{"accesses", code, "--start", "0x1000", "--end", "0x1008", "--seed", "0x1000:x0=0x90"},
			want: "    0x98  8  sub_1000[+0x90]\n",
		},
		{
			name: "default register and delta",
			args: []string{"accesses", code, "--start", "0x1000", "--end", "0x1008", "--delta", "0x10"},
			want: "    0x18  8  sub_1000[+0x10]\n",
		},
		{
			name: "register not holding the pointer",
			args: []string{"accesses", code, "--start", "0x1000", "--end", "0x1008", "--reg", "x1"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, append(common, tt.args...)...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccessesJSON(t *testing.T) {
	code, config := blob(t)
	got, err := execute(t, "--config", config, "--base", "0x1000", "accesses", code,
		"--start", "0x1000", "--end", "0x1008",
		"--seed", "0x1000:x0=0x90", "--seed", "0x2000:x1=0", "--json")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var doc report.Document
	if err := json.Unmarshal([]byte(got), &doc); err != nil {
		t.Fatalf("unmarshal %q: %v", got, err)
	}
	if len(doc.Accesses) != 1 || doc.Accesses[0].Offset != "0x98" || doc.Accesses[0].Size != 8 {
		t.Errorf("accesses = %+v", doc.Accesses)
	}
	if len(doc.Dropped) != 1 || doc.Dropped[0].Addr != "0x2000" {
		t.Errorf("dropped = %+v", doc.Dropped)
	}
}

func TestStructAndListingCommands(t *testing.T) {
	code, config := blob(t)
	common := []string{"--config", config, "--no-color", "--base", "0x1000"}
	target := []string{code, "--start", "0x1000", "--end", "0x1008", "--seed", "0x1000:x0=0x90", "--name", "obj"}

	got, err := execute(t, append(append(common, "struct"), target...)...)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	for _, want := range []string{"struct obj {", "pad_0[0x98]", "field_98;"} {
		if !strings.Contains(got, want) {
			t.Errorf("struct output %q lacks %q", got, want)
		}
	}

	got, err = execute(t, append(append(common, "listing"), target...)...)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 {
		t.Fatalf("listing = %q, want 2 lines", got)
	}
	if !strings.HasPrefix(lines[0], "1000  ") || !strings.HasSuffix(lines[0], "; obj.field_98-0x90") {
		t.Errorf("first line = %q", lines[0])
	}
	if strings.Contains(lines[1], ";") {
		t.Errorf("ret annotated: %q", lines[1])
	}
}

func TestCommandErrors(t *testing.T) {
	code, config := blob(t)
	common := []string{"--config", config, "--base", "0x1000"}
	tests := []struct {
		name string
		args []string
		is   error
	}{
		{name: "no target", args: []string{"accesses", code}, is: dataflow.ErrConfiguration},
		{name: "bad seed", args: []string{"accesses", code, "--start", "0x1000", "--end", "0x1008", "--seed", "0x1000"}, is: errBadSeed},
		{name: "inverted range", args: []string{"accesses", code, "--start", "0x1008", "--end", "0x1000"}, is: dataflow.ErrCFGBuild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append(common, tt.args...)...)
			if !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestLogsCommand(t *testing.T) {
	_, config := blob(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "structflow-20250101-120000-debug.log")
	if err := os.WriteFile(path, []byte("INFO structflow analyzed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STRUCTFLOW_LOG_DIR", dir)
	got, err := execute(t, "--config", config, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if got != "INFO structflow analyzed\n" {
		t.Errorf("logs = %q", got)
	}
}

func TestSchemaCommand(t *testing.T) {
	_, config := blob(t)
	got, err := execute(t, "--config", config, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, key := range []string{"maxFunctionSize", "logLevel"} {
		if !strings.Contains(got, key) {
			t.Errorf("schema lacks %s", key)
		}
	}
}
