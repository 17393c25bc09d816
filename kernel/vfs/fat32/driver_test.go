package fat32

import (
	"testing"

	"github.com/Ewogijk/runeOS-sub002/kernel/vfs"
)

func mountedDriver(t *testing.T) (*Driver, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice(4096)
	d := New()
	if err := d.Format(dev); err != nil {
		t.Fatalf("unexpected Format error: %v", err)
	}
	if err := d.Mount(dev); err != nil {
		t.Fatalf("unexpected Mount error: %v", err)
	}
	return d, dev
}

func TestMountRejectsVolumeWithWrongOEM(t *testing.T) {
	dev := newFakeDevice(4096)
	d := New()
	if err := d.Mount(dev); err != errBadOEM {
		t.Fatalf("expected errBadOEM on an unformatted device; got %v", err)
	}
}

func TestCreateFindAndDeleteFile(t *testing.T) {
	d, dev := mountedDriver(t)

	if err := d.Create(dev, "/hello.txt", vfs.CreateAttrs{Kind: vfs.File}); err != nil {
		t.Fatalf("unexpected Create error: %v", err)
	}

	info, err := d.FindNode(dev, "/hello.txt")
	if err != nil {
		t.Fatalf("unexpected FindNode error: %v", err)
	}
	if info.Kind != vfs.File {
		t.Fatalf("expected a file; got kind %v", info.Kind)
	}

	if err := d.DeleteNode(dev, "/hello.txt"); err != nil {
		t.Fatalf("unexpected DeleteNode error: %v", err)
	}
	if _, err := d.FindNode(dev, "/hello.txt"); err != errNotFound {
		t.Fatalf("expected errNotFound after delete; got %v", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	d, dev := mountedDriver(t)
	if err := d.Create(dev, "/a.txt", vfs.CreateAttrs{Kind: vfs.File}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Create(dev, "/a.txt", vfs.CreateAttrs{Kind: vfs.File}); err != errExists {
		t.Fatalf("expected errExists; got %v", err)
	}
}

func TestCreateNestedDirectoryAndFile(t *testing.T) {
	d, dev := mountedDriver(t)
	if err := d.Create(dev, "/sub", vfs.CreateAttrs{Kind: vfs.Directory}); err != nil {
		t.Fatalf("unexpected error creating directory: %v", err)
	}
	if err := d.Create(dev, "/sub/nested.txt", vfs.CreateAttrs{Kind: vfs.File}); err != nil {
		t.Fatalf("unexpected error creating nested file: %v", err)
	}
	info, err := d.FindNode(dev, "/sub/nested.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Name == "" {
		t.Fatal("expected a resolved name for the nested file")
	}
}

func TestCreateUnderNonDirectoryFails(t *testing.T) {
	d, dev := mountedDriver(t)
	if err := d.Create(dev, "/file.txt", vfs.CreateAttrs{Kind: vfs.File}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Create(dev, "/file.txt/nested.txt", vfs.CreateAttrs{Kind: vfs.File}); err != errBadPath {
		t.Fatalf("expected errBadPath; got %v", err)
	}
}

func TestOpenWriteReadRoundTrips(t *testing.T) {
	d, dev := mountedDriver(t)
	if err := d.Create(dev, "/data.bin", vfs.CreateAttrs{Kind: vfs.File}); err != nil {
		t.Fatalf("unexpected Create error: %v", err)
	}

	node, err := d.Open(dev, "", "/data.bin", vfs.ReadWrite, nil)
	if err != nil {
		t.Fatalf("unexpected Open error: %v", err)
	}
	payload := make([]byte, 2000) // spans multiple clusters at 512 bytes each
	for i := range payload {
		payload[i] = byte(i)
	}
	n, werr := node.Write(payload)
	if werr != nil {
		t.Fatalf("unexpected Write error: %v", werr)
	}
	if n != len(payload) {
		t.Fatalf("expected to write %d bytes; wrote %d", len(payload), n)
	}
	if err := node.Close(); err != nil {
		t.Fatalf("unexpected Close error: %v", err)
	}

	node2, err := d.Open(dev, "", "/data.bin", vfs.ReadOnly, nil)
	if err != nil {
		t.Fatalf("unexpected Open error: %v", err)
	}
	readBack := make([]byte, len(payload))
	total := 0
	for total < len(readBack) {
		n, rerr := node2.Read(readBack[total:])
		if rerr != nil {
			t.Fatalf("unexpected Read error: %v", rerr)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total != len(payload) {
		t.Fatalf("expected to read back %d bytes; got %d", len(payload), total)
	}
	for i := range payload {
		if readBack[i] != payload[i] {
			t.Fatalf("byte %d mismatch: wrote %d read %d", i, payload[i], readBack[i])
		}
	}

	info, err := d.FindNode(dev, "/data.bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Size != uint64(len(payload)) {
		t.Fatalf("expected size %d to be persisted; got %d", len(payload), info.Size)
	}
}

func TestOpenDirectoryStreamListsCreatedEntries(t *testing.T) {
	d, dev := mountedDriver(t)
	names := []string{"one.txt", "two.txt", "a-rather-long-descriptive-file-name.txt"}
	for _, n := range names {
		if err := d.Create(dev, "/"+n, vfs.CreateAttrs{Kind: vfs.File}); err != nil {
			t.Fatalf("unexpected Create error for %q: %v", n, err)
		}
	}

	stream, err := d.OpenDirectoryStream(dev, "/", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[string]bool{}
	for {
		info, ok, err := stream.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			break
		}
		seen[info.Name] = true
	}
	for _, n := range names {
		if !seen[n] {
			t.Fatalf("expected to see %q in the directory listing; saw %v", n, seen)
		}
	}
}

func TestDeleteNonEmptyDirectoryFails(t *testing.T) {
	d, dev := mountedDriver(t)
	if err := d.Create(dev, "/sub", vfs.CreateAttrs{Kind: vfs.Directory}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Create(dev, "/sub/file.txt", vfs.CreateAttrs{Kind: vfs.File}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.DeleteNode(dev, "/sub"); err != errNotEmpty {
		t.Fatalf("expected errNotEmpty; got %v", err)
	}
}

func TestIsValidFilePathRejectsIllegalCharacters(t *testing.T) {
	d := New()
	if !d.IsValidFilePath("/docs/report.txt") {
		t.Fatal("expected a plain path to be valid")
	}
	if d.IsValidFilePath("/docs/rep*ort.txt") {
		t.Fatal("expected a path containing '*' to be invalid")
	}
}
