package simconfig

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/simwrap/internal/pathutil"
	"github.com/nvandessel/simwrap/internal/xmlio"
)

// ErrMalformed reports a configuration document that cannot be parsed.
var ErrMalformed = errors.New("malformed configuration")

// DocType is the document type declaration written to every configuration.
const DocType = `<!DOCTYPE config SYSTEM "http://www.matsim.org/files/dtd/config_v2.dtd">`

type xmlConfig struct {
	XMLName xml.Name    `xml:"config"`
	Modules []xmlModule `xml:"module"`
}

type xmlModule struct {
	Name   string     `xml:"name,attr"`
	Params []xmlParam `xml:"param"`
	Sets   []xmlSet   `xml:"parameterset"`
}

type xmlSet struct {
	Type   string     `xml:"type,attr"`
	Params []xmlParam `xml:"param"`
	Sets   []xmlSet   `xml:"parameterset"`
}

type xmlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Decode parses a configuration document. Modules that appear more than once
// are merged in document order.
func Decode(r io.Reader) (*Tree, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var doc xmlConfig
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	t := New()
	for _, xm := range doc.Modules {
		if strings.TrimSpace(xm.Name) == "" {
			return nil, fmt.Errorf("%w: module without a name", ErrMalformed)
		}
		g, err := fromXML(xm.Params, xm.Sets)
		if err != nil {
			return nil, err
		}
		t.EnsureModule(xm.Name).Group.merge(&g)
	}
	return t, nil
}

func fromXML(params []xmlParam, sets []xmlSet) (Group, error) {
	var g Group
	for _, p := range params {
		if p.Name == "" {
			return Group{}, fmt.Errorf("%w: param without a name", ErrMalformed)
		}
		g.Params = append(g.Params, Param{Name: p.Name, Value: p.Value})
	}
	for _, s := range sets {
		if s.Type == "" {
			return Group{}, fmt.Errorf("%w: parameterset without a type", ErrMalformed)
		}
		child, err := fromXML(s.Params, s.Sets)
		if err != nil {
			return Group{}, err
		}
		g.Sets = append(g.Sets, &ParameterSet{Type: s.Type, Group: child})
	}
	return g, nil
}

// charsetReader accepts the encodings engine configurations are written in.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
}

// Encode writes t as a config_v2 document.
func Encode(w io.Writer, t *Tree) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	bw.WriteString(DocType + "\n")
	bw.WriteString("<config>\n")
	for _, m := range t.Modules() {
		bw.WriteString("\n\t<module name=\"")
		writeAttr(bw, m.Name)
		bw.WriteString("\" >\n")
		writeGroup(bw, &m.Group, 2)
		bw.WriteString("\t</module>\n")
	}
	bw.WriteString("\n</config>\n")
	return bw.Flush()
}

func writeGroup(bw *bufio.Writer, g *Group, depth int) {
	indent := strings.Repeat("\t", depth)
	for _, p := range g.Params {
		bw.WriteString(indent + "<param name=\"")
		writeAttr(bw, p.Name)
		bw.WriteString("\" value=\"")
		writeAttr(bw, p.Value)
		bw.WriteString("\" />\n")
	}
	for _, s := range g.Sets {
		bw.WriteString(indent + "<parameterset type=\"")
		writeAttr(bw, s.Type)
		bw.WriteString("\" >\n")
		writeGroup(bw, &s.Group, depth+1)
		bw.WriteString(indent + "</parameterset>\n")
	}
}

func writeAttr(bw *bufio.Writer, s string) {
	// EscapeText only fails when the writer does; Flush reports that.
	_ = xml.EscapeText(bw, []byte(s))
}

// Load reads a configuration file. A missing or unreadable file is reported
// with pathutil.ErrNotFound or pathutil.ErrNotReadable before parsing starts.
func Load(path string) (*Tree, error) {
	if err := pathutil.CheckReadable(path); err != nil {
		return nil, err
	}
	r, err := xmlio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pathutil.ErrNotReadable, path, err)
	}
	defer r.Close()

	t, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return t, nil
}

// LoadInto reads a configuration file and merges it over t. t is unchanged
// when loading fails.
func LoadInto(t *Tree, path string) error {
	overlay, err := Load(path)
	if err != nil {
		return err
	}
	t.Merge(overlay)
	return nil
}

// Save writes t to path, creating parent directories.
func Save(path string, t *Tree) error {
	w, err := xmlio.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Encode(w, t); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
