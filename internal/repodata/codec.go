package repodata

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// document is implemented by the three metadata documents. normalize
// restores the root attributes and counts that decoding does not fill in.
type document interface {
	normalize()
}

// Marshal encodes doc as an indented UTF-8 XML document.
func Marshal(doc document) ([]byte, error) {
	doc.normalize()

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Unmarshal decodes a document from r.
func Unmarshal(r io.Reader, doc document) error {
	dec := xml.NewTokenDecoder(prefixRestorer{xml.NewDecoder(r)})
	if err := dec.Decode(doc); err != nil {
		return err
	}
	doc.normalize()
	return nil
}

// prefixRestorer turns namespaced rpm elements back into the literal
// "rpm:" names the struct tags use.
type prefixRestorer struct {
	r xml.TokenReader
}

func (p prefixRestorer) Token() (xml.Token, error) {
	tok, err := p.r.Token()
	switch t := tok.(type) {
	case xml.StartElement:
		t.Name = restorePrefix(t.Name)
		return t, err
	case xml.EndElement:
		t.Name = restorePrefix(t.Name)
		return t, err
	}
	return tok, err
}

func restorePrefix(n xml.Name) xml.Name {
	if n.Space == NamespaceRPM || n.Space == "rpm" {
		return xml.Name{Local: "rpm:" + n.Local}
	}
	return n
}

// ReadDocument decodes the document at path, decompressing .gz and .zst
// files.
func ReadDocument(path string, doc document) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	switch filepath.Ext(path) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	if err := Unmarshal(r, doc); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
