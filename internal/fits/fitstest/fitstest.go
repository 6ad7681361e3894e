// Package fitstest builds small FITS files for tests.
package fitstest

import (
	"bytes"
	"fmt"
	"os"
	"testing"
)

const blockSize = 2880

// Primary returns a data-less primary HDU carrying the extra cards, for
// example "OBJECT  = 'M31'".
func Primary(extra ...string) []byte {
	var b bytes.Buffer
	for _, c := range append([]string{
		"SIMPLE  =                    T",
		"BITPIX  =                    8",
		"NAXIS   =                    0",
	}, extra...) {
		fmt.Fprintf(&b, "%-80s", c)
	}
	fmt.Fprintf(&b, "%-80s", "END")
	for b.Len()%blockSize != 0 {
		b.WriteByte(' ')
	}
	return b.Bytes()
}

// Write stores Primary(extra...) at path.
func Write(t testing.TB, path string, extra ...string) {
	t.Helper()
	if err := os.WriteFile(path, Primary(extra...), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
