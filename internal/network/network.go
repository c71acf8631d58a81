// Package network reads and writes engine road networks and removes the
// parts of a network that cannot be reached in both directions.
package network

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/simwrap/internal/pathutil"
	"github.com/nvandessel/simwrap/internal/xmlio"
)

// ErrMalformed reports a network file that cannot be decoded.
var ErrMalformed = errors.New("malformed network")

// DocType is the DOCTYPE written ahead of every network document.
const DocType = `<!DOCTYPE network SYSTEM "http://www.matsim.org/files/dtd/network_v2.dtd">`

// Network is a directed road network.
type Network struct {
	XMLName xml.Name   `xml:"network"`
	Name    string     `xml:"name,attr,omitempty"`
	Extra   []xml.Attr `xml:",any,attr"`

	Attributes *Attributes `xml:"attributes,omitempty"`
	Nodes      []Node      `xml:"nodes>node"`
	Links      Links       `xml:"links"`
}

// Attributes holds the free-form attributes block of an element verbatim.
type Attributes struct {
	Inner string `xml:",innerxml"`
}

// Links is the links block with its network-wide link settings.
type Links struct {
	CapPeriod          string `xml:"capperiod,attr,omitempty"`
	EffectiveCellSize  string `xml:"effectivecellsize,attr,omitempty"`
	EffectiveLaneWidth string `xml:"effectivelanewidth,attr,omitempty"`
	Items              []Link `xml:"link"`
}

// Node is a network vertex.
type Node struct {
	ID    string     `xml:"id,attr"`
	X     float64    `xml:"x,attr"`
	Y     float64    `xml:"y,attr"`
	Extra []xml.Attr `xml:",any,attr"`

	Attributes *Attributes `xml:"attributes,omitempty"`
}

// Link is a directed network edge.
type Link struct {
	ID        string     `xml:"id,attr"`
	From      string     `xml:"from,attr"`
	To        string     `xml:"to,attr"`
	Length    float64    `xml:"length,attr"`
	FreeSpeed float64    `xml:"freespeed,attr"`
	Capacity  float64    `xml:"capacity,attr"`
	PermLanes float64    `xml:"permlanes,attr"`
	OneWay    string     `xml:"oneway,attr,omitempty"`
	Modes     string     `xml:"modes,attr,omitempty"`
	Extra     []xml.Attr `xml:",any,attr"`

	Attributes *Attributes `xml:"attributes,omitempty"`
}

// AllowedModes returns the link's modes as a list.
func (l Link) AllowedModes() []string {
	var modes []string
	for _, m := range strings.Split(l.Modes, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modes = append(modes, m)
		}
	}
	return modes
}

// Allows reports whether the link carries any of modes. Every link matches
// an empty list.
func (l Link) Allows(modes []string) bool {
	if len(modes) == 0 {
		return true
	}
	for _, have := range l.AllowedModes() {
		for _, want := range modes {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// Decode reads a network document.
func Decode(r io.Reader) (*Network, error) {
	var n Network
	if err := xml.NewDecoder(r).Decode(&n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &n, nil
}

// Encode writes n with the XML declaration and DOCTYPE.
func Encode(w io.Writer, n *Network) error {
	if _, err := io.WriteString(w, xml.Header+DocType+"\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(n); err != nil {
		return fmt.Errorf("encoding network: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Read loads the network at path. Compressed files are supported.
func Read(path string) (*Network, error) {
	if err := pathutil.CheckReadable(path); err != nil {
		return nil, err
	}
	r, err := xmlio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pathutil.ErrNotReadable, pathutil.RedactPath(path), err)
	}
	defer r.Close()
	n, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", pathutil.RedactPath(path), err)
	}
	return n, nil
}

// Write stores n at path, compressing when path ends in .gz.
func Write(path string, n *Network) error {
	w, err := xmlio.Create(path)
	if err != nil {
		return fmt.Errorf("writing network: %w", err)
	}
	if err := Encode(w, n); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing network: %w", err)
	}
	return nil
}
