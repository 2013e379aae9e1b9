// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"firefly-os.dev/tools/disasm/internal/x86"
)

func TestIterator(t *testing.T) {
	code := mustHex(t, "55 48 89 e5 06 b8 01 00 00 00 c3")
	it := NewIterator(code, 0x1000, x86.Mode64)

	type step struct {
		Addr uint64
		Text string
		Bad  []byte
	}

	var got []step
	for {
		addr := it.Addr()
		inst, err := it.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			if !errors.Is(err, ErrInvalidMode) {
				t.Fatalf("Next(): unexpected error %v", err)
			}

			got = append(got, step{Addr: addr, Bad: it.Skip(1)})
			continue
		}

		if inst.Addr != addr {
			t.Errorf("Next(): got address %#x, want %#x", inst.Addr, addr)
		}

		got = append(got, step{Addr: addr, Text: inst.String()})
	}

	want := []step{
		{Addr: 0x1000, Text: "push rbp"},
		{Addr: 0x1001, Text: "mov rbp, rsp"},
		{Addr: 0x1004, Bad: []byte{0x06}},
		{Addr: 0x1005, Text: "mov eax, 0x1"},
		{Addr: 0x100a, Text: "ret"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Iterator: (-want, +got)\n%s", diff)
	}

	if n := it.Remaining(); n != 0 {
		t.Errorf("Remaining(): got %d, want 0", n)
	}

	if _, err := it.Next(); err != io.EOF {
		t.Errorf("Next() at end: got error %v, want %v", err, io.EOF)
	}
}

func TestIteratorTruncated(t *testing.T) {
	it := NewIterator(mustHex(t, "90 b8 01"), 0, x86.Mode32)
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next(): %v", err)
	}

	_, err := it.Next()
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Next(): got error %v, want %v", err, ErrOutOfRange)
	}

	if it.Addr() != 1 || it.Remaining() != 2 {
		t.Errorf("Next() advanced after an error to %#x", it.Addr())
	}

	if got := it.Skip(5); len(got) != 2 {
		t.Errorf("Skip(5): got %x, want 2 bytes", got)
	}

	if _, err := it.Next(); err != io.EOF {
		t.Errorf("Next() at end: got error %v, want %v", err, io.EOF)
	}
}
