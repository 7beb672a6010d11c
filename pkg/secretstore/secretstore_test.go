package secretstore

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"path/filepath"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(OpenOptions{Path: filepath.Join(t.TempDir(), "secrets")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SetString("env/WALLET_PRIVATE_KEY", "0xdeadbeef"); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, found, err := s.GetString("env/WALLET_PRIVATE_KEY")
	if err != nil || !found || v != "0xdeadbeef" {
		t.Fatalf("get = (%q, %v, %v), want (0xdeadbeef, true, nil)", v, found, err)
	}

	_, found, err = s.GetString("env/MISSING")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Fatal("missing key reported as found")
	}
}

func TestEmptyValueStillFound(t *testing.T) {
	s, err := Open(OpenOptions{Path: filepath.Join(t.TempDir(), "secrets")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SetString("env/EMPTY", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, found, err := s.GetString("env/EMPTY")
	if err != nil || !found || v != "" {
		t.Fatalf("get = (%q, %v, %v), want (\"\", true, nil)", v, found, err)
	}
}

func TestEncryptedReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secrets")
	key := bytes.Repeat([]byte{0x42}, 32)

	s, err := Open(OpenOptions{Path: dir, EncryptionKey: key})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SetString("k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(OpenOptions{Path: dir, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	v, found, err := s.GetString("k")
	if err != nil || !found || v != "v" {
		t.Fatalf("get after reopen = (%q, %v, %v)", v, found, err)
	}
}

func TestParseKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, 32)

	cases := []struct {
		name  string
		in    string
		want  []byte
		isErr bool
	}{
		{name: "empty is optional", in: "", want: nil},
		{name: "hex", in: hex.EncodeToString(raw), want: raw},
		{name: "hex with prefix", in: "0x" + hex.EncodeToString(raw), want: raw},
		{name: "base64", in: base64.StdEncoding.EncodeToString(raw), want: raw},
		{name: "hex wrong length", in: "abcd", isErr: true},
		{name: "garbage", in: "not-a-key!", isErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseKey(tc.in)
			if tc.isErr {
				if err == nil {
					t.Fatalf("ParseKey(%q) succeeded, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKey(%q): %v", tc.in, err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("ParseKey(%q) = %x, want %x", tc.in, got, tc.want)
			}
		})
	}
}
