package modbus

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// assertHex checks that actual encodes to the expected lowercase hex string.
func assertHex(t *testing.T, expected string, actual []byte) {
	t.Helper()
	if got := hex.EncodeToString(actual); got != expected {
		t.Errorf("Expected %s, but got %s", expected, got)
	}
}

// assertBytesEqual checks if two byte slices are equal.
func assertBytesEqual(t *testing.T, expected []byte, actual []byte) {
	t.Helper()
	if !bytes.Equal(expected, actual) {
		t.Errorf("Expected % x, but got % x", expected, actual)
	}
}

// assertBoolsEqual checks if two slices of bool are equal.
func assertBoolsEqual(t *testing.T, expected []bool, actual []bool) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("Expected length %d, but got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("Expected %v, but got %v", expected, actual)
			return
		}
	}
}

// assertKind checks the failure class of err.
func assertKind(t *testing.T, expected ErrorKind, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected a %s error, but got nil", expected)
	}
	if got := Kind(err); got != expected {
		t.Errorf("Expected a %s error, but got %s: %v", expected, got, err)
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}
