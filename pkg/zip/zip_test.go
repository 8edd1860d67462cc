package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssets(t *testing.T) {
	archive, err := ArchiveAssets([]Asset{
		{Filename: "0_original.jpg", MIME: "image/jpeg", Data: []byte("jpeg-bytes")},
		{Filename: "notes.txt", MIME: "text/plain", Data: bytes.Repeat([]byte("a"), 1000)},
		{Filename: "notes.txt", MIME: "text/plain", Data: []byte("second")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	want := map[string]uint16{"0_original.jpg": zip.Store, "notes.txt": zip.Deflate, "1_notes.txt": zip.Deflate}
	if len(zr.File) != len(want) {
		t.Fatalf("files = %d, want %d", len(zr.File), len(want))
	}
	for _, f := range zr.File {
		method, ok := want[f.Name]
		if !ok {
			t.Fatalf("unexpected entry %s", f.Name)
		}
		if f.Method != method {
			t.Fatalf("%s method = %d, want %d", f.Name, f.Method, method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if f.Name == "1_notes.txt" && string(data) != "second" {
			t.Fatalf("duplicate entry content = %q", data)
		}
	}
}
