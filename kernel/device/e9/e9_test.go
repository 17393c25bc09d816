package e9

import "testing"

func TestWriteSendsEveryByteToThePort(t *testing.T) {
	orig := outbFn
	defer func() { outbFn = orig }()

	var written []byte
	outbFn = func(p uint16, value uint8) {
		if p != port {
			t.Fatalf("expected port %#x; got %#x", port, p)
		}
		written = append(written, value)
	}

	n, err := Default.Write([]byte("boot"))
	if err != nil || n != 4 {
		t.Fatalf("unexpected result: n=%d err=%v", n, err)
	}
	if string(written) != "boot" {
		t.Fatalf("expected \"boot\" written to the port; got %q", written)
	}
}
