// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package dump

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"rsc.io/diff"

	"firefly-os.dev/tools/disasm/internal/config"
	"firefly-os.dev/tools/disasm/internal/x86"
)

// buildELF returns a minimal ELF64 binary with
// the given machine and sections, each of which
// is placed at its address.
func buildELF(t *testing.T, machine elf.Machine, sections []*Section, flags []elf.SectionFlag) []byte {
	t.Helper()

	const (
		headerSize  = 64
		sectionSize = 64
	)

	var body bytes.Buffer
	offsets := make([]uint64, len(sections))
	for i, sec := range sections {
		offsets[i] = headerSize + uint64(body.Len())
		body.Write(sec.Code)
	}

	strtab := []byte{0}
	names := make([]uint32, len(sections))
	for i, sec := range sections {
		names[i] = uint32(len(strtab))
		strtab = append(strtab, sec.Name...)
		strtab = append(strtab, 0)
	}

	shstrtabName := uint32(len(strtab))
	strtab = append(strtab, ".shstrtab\x00"...)
	strtabOffset := headerSize + uint64(body.Len())
	body.Write(strtab)
	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}

	shoff := headerSize + uint64(body.Len())
	shnum := len(sections) + 2
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    headerSize,
		Phentsize: 56,
		Shentsize: sectionSize,
		Shnum:     uint16(shnum),
		Shstrndx:  uint16(shnum - 1),
	}

	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	write := func(v any) {
		err := binary.Write(&out, binary.LittleEndian, v)
		if err != nil {
			t.Fatal(err)
		}
	}

	write(hdr)
	out.Write(body.Bytes())
	write(elf.Section64{}) // SHT_NULL.
	for i, sec := range sections {
		write(elf.Section64{
			Name:      names[i],
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint64(flags[i]),
			Addr:      sec.Addr,
			Off:       offsets[i],
			Size:      uint64(len(sec.Code)),
			Addralign: 1,
		})
	}

	write(elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       strtabOffset,
		Size:      uint64(len(strtab)),
		Addralign: 1,
	})

	return out.Bytes()
}

func TestLoad(t *testing.T) {
	text := &Section{Name: ".text", Addr: 0x401000, Code: []byte{0x55, 0xc3}}
	data := &Section{Name: ".data", Addr: 0x402000, Code: []byte{0x01, 0x02}}
	exec := elf.SHF_ALLOC | elf.SHF_EXECINSTR
	bin64 := buildELF(t, elf.EM_X86_64, []*Section{text, data}, []elf.SectionFlag{exec, elf.SHF_ALLOC | elf.SHF_WRITE})
	bin32 := buildELF(t, elf.EM_386, []*Section{text}, []elf.SectionFlag{exec})
	arm := buildELF(t, elf.EM_AARCH64, []*Section{text}, []elf.SectionFlag{exec})

	tests := []struct {
		Name    string
		Data    []byte
		Mode    x86.Mode
		ModeSet bool
		Only    []string
		Want    []*Section
		Err     string
	}{
		{
			Name: "raw",
			Data: []byte{0x90},
			Mode: x86.Mode16,
			Want: []*Section{{File: "test", Name: "test", Addr: 0x7c00, Mode: x86.Mode16, Code: []byte{0x90}}},
		},
		{
			Name: "executable sections",
			Data: bin64,
			Mode: x86.Mode16,
			Want: []*Section{{File: "test", Name: ".text", Addr: 0x401000, Mode: x86.Mode64, Code: []byte{0x55, 0xc3}}},
		},
		{
			Name: "named sections",
			Data: bin64,
			Only: []string{".data", ".text"},
			Mode: x86.Mode64,
			Want: []*Section{
				{File: "test", Name: ".text", Addr: 0x401000, Mode: x86.Mode64, Code: []byte{0x55, 0xc3}},
				{File: "test", Name: ".data", Addr: 0x402000, Mode: x86.Mode64, Code: []byte{0x01, 0x02}},
			},
		},
		{
			Name: "32-bit",
			Data: bin32,
			Mode: x86.Mode64,
			Want: []*Section{{File: "test", Name: ".text", Addr: 0x401000, Mode: x86.Mode32, Code: []byte{0x55, 0xc3}}},
		},
		{
			Name:    "explicit mode",
			Data:    bin32,
			Mode:    x86.Mode16,
			ModeSet: true,
			Want:    []*Section{{File: "test", Name: ".text", Addr: 0x401000, Mode: x86.Mode16, Code: []byte{0x55, 0xc3}}},
		},
		{
			Name: "missing section",
			Data: bin64,
			Only: []string{".init", ".fini"},
			Err:  "no section .fini, .init",
		},
		{
			Name: "wrong machine",
			Data: arm,
			Err:  "unsupported machine",
		},
		{
			Name: "bad ELF",
			Data: []byte(elf.ELFMAG + "junk"),
			Err:  "failed to parse ELF binary",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := Load("test", test.Data, 0x7c00, test.Mode, test.ModeSet, test.Only)
			if test.Err != "" {
				if err == nil || !strings.Contains(err.Error(), test.Err) {
					t.Fatalf("Load(): got error %v, want %q", err, test.Err)
				}

				return
			}

			if err != nil {
				t.Fatalf("Load(): %v", err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("Load(): (-want, +got)\n%s", diff)
			}
		})
	}
}

func TestDump(t *testing.T) {
	var sections []*Section
	var want strings.Builder
	for i := 0; i < 8; i++ {
		addr := uint64(0x1000 * (i + 1))
		sections = append(sections, &Section{
			File: "test",
			Name: fmt.Sprintf(".text.%d", i),
			Addr: addr,
			Mode: x86.Mode64,
			Code: []byte{0x48, 0x89, 0xc8, 0x06, 0xc3},
		})

		fmt.Fprintf(&want, "\n%016x <.text.%d>:\n", addr, i)
		fmt.Fprintf(&want, "%8x:  %-29s  %s\n", addr, "48 89 c8", "mov rax, rcx")
		fmt.Fprintf(&want, "%8x:  %-29s  %s\n", addr+3, "06", ".byte 0x6")
		fmt.Fprintf(&want, "%8x:  %-29s  %s\n", addr+4, "c3", "ret")
	}

	cfg := config.Default()
	cfg.Jobs = 3
	d := &Dumper{Config: cfg, Verbose: true, Crosscheck: true}
	var buf bytes.Buffer
	err := d.Dump(context.Background(), &buf, sections)
	if err != nil {
		t.Fatalf("Dump(): %v", err)
	}

	if got := buf.String(); got != want.String() {
		t.Fatalf("Dump():\n%s", diff.Format(got, want.String()))
	}
}

func TestDumpCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Dumper{Config: config.Default()}
	sections := []*Section{{Name: ".text", Mode: x86.Mode64, Code: []byte{0xc3}}}
	err := d.Dump(ctx, new(bytes.Buffer), sections)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Dump(): got error %v, want %v", err, context.Canceled)
	}
}

func TestCrosscheck(t *testing.T) {
	sec := &Section{
		Addr: 0x1000,
		Mode: x86.Mode64,
		Code: []byte{
			0x55,
			0x48, 0x89, 0xe5,
			0x8b, 0x44, 0x24, 0x08,
			0x0f, 0xb6, 0xc1,
			0x06,
			0xc3,
		},
	}

	if got := Crosscheck(sec); got != 0 {
		t.Errorf("Crosscheck(): got %d differing instructions, want 0", got)
	}
}
