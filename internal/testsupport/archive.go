package testsupport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// KraKeyframe is one keyframe entry written to a layer's keyframe index.
type KraKeyframe struct {
	Time  int
	Frame string
}

// KraLayer describes one layer of a synthetic document.
type KraLayer struct {
	UUID          string
	Name          string
	KeyframesFile string
	Keyframes     []KraKeyframe
	// Blobs maps frame reference to the byte size of its stored blob.
	// References without an entry are left out of the archive.
	Blobs map[string]int
	// OmitIndex leaves the keyframe index file out of the archive.
	OmitIndex bool
	// RawIndex replaces the generated keyframe index body.
	RawIndex string
}

// KraDocument describes a synthetic .kra archive.
type KraDocument struct {
	Name string
	// NoNamespace drops the default xmlns from maindoc.xml.
	NoNamespace bool
	Layers      []KraLayer
	// RawMainDoc replaces the generated maindoc.xml body.
	RawMainDoc string
	// OmitMainDoc leaves maindoc.xml out of the archive.
	OmitMainDoc bool
}

// BuildKra renders doc as .kra archive bytes. Layer files live under
// "<name>/layers/" the way the host application saves them.
func BuildKra(t testing.TB, doc KraDocument) []byte {
	t.Helper()

	name := doc.Name
	if name == "" {
		name = "Unnamed"
	}
	layerDir := path.Join(name, "layers")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(entry string, body []byte) {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", entry, err)
		}
		if _, err := w.Write(body); err != nil {
			t.Fatalf("write zip entry %s: %v", entry, err)
		}
	}

	stored, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("create mimetype entry: %v", err)
	}
	if _, err := stored.Write([]byte("application/x-krita")); err != nil {
		t.Fatalf("write mimetype entry: %v", err)
	}

	if !doc.OmitMainDoc {
		body := doc.RawMainDoc
		if body == "" {
			body = mainDocXML(name, doc.Layers, !doc.NoNamespace)
		}
		write("maindoc.xml", []byte(body))
	}

	for _, layer := range doc.Layers {
		if !layer.OmitIndex && layer.KeyframesFile != "" {
			body := layer.RawIndex
			if body == "" {
				body = keyframesXML(layer.Keyframes)
			}
			write(path.Join(layerDir, layer.KeyframesFile), []byte(body))
		}
		refs := make([]string, 0, len(layer.Blobs))
		for ref := range layer.Blobs {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			write(path.Join(layerDir, ref), bytes.Repeat([]byte{0x42}, layer.Blobs[ref]))
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// WriteKra writes doc to dir/file and returns the path.
func WriteKra(t testing.TB, dir, file string, doc KraDocument) string {
	t.Helper()
	target := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", target, err)
	}
	if err := os.WriteFile(target, BuildKra(t, doc), 0o644); err != nil {
		t.Fatalf("write %s: %v", target, err)
	}
	return target
}

func mainDocXML(name string, layers []KraLayer, namespaced bool) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE DOC PUBLIC '-//KDE//DTD krita 2.0//EN' 'http://www.calligra.org/DTD/krita-2.0.dtd'>` + "\n")
	if namespaced {
		b.WriteString(`<DOC xmlns="http://www.calligra.org/DTD/krita" syntaxVersion="2.0">` + "\n")
	} else {
		b.WriteString(`<DOC syntaxVersion="2.0">` + "\n")
	}
	fmt.Fprintf(&b, ` <IMAGE name=%q width="640" height="480" colorspacename="RGBA">`+"\n", name)
	b.WriteString("  <layers>\n")
	for i, layer := range layers {
		fmt.Fprintf(&b, `   <layer nodetype="paintlayer" filename="layer%d" name=%q uuid=%q`, i+2, layer.Name, layer.UUID)
		if layer.KeyframesFile != "" {
			fmt.Fprintf(&b, ` keyframes=%q`, layer.KeyframesFile)
		}
		b.WriteString("/>\n")
	}
	b.WriteString("  </layers>\n </IMAGE>\n</DOC>\n")
	return b.String()
}

func keyframesXML(frames []KraKeyframe) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<!DOCTYPE keyframes>\n<keyframes>\n")
	b.WriteString(` <channel name="content">` + "\n")
	for _, kf := range frames {
		fmt.Fprintf(&b, `  <keyframe time="%d" frame=%q color-label="0"/>`+"\n", kf.Time, kf.Frame)
	}
	b.WriteString(" </channel>\n</keyframes>\n")
	return b.String()
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
