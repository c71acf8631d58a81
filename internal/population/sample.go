package population

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sync"

	"github.com/iti/rngstream"

	"github.com/nvandessel/simwrap/internal/constants"
	"github.com/nvandessel/simwrap/internal/pathutil"
	"github.com/nvandessel/simwrap/internal/xmlio"
)

// ErrMalformed reports a population file that is not well-formed XML.
var ErrMalformed = errors.New("malformed population")

// maxSeed keeps derived seeds below the smallest rngstream modulus.
const maxSeed = 4294944442

// cancelCheckInterval is how many persons are copied between context checks.
const cancelCheckInterval = 1024

// rngstream seeds new streams from a package-level master seed, so seeding
// and stream creation must not interleave.
var seedMu sync.Mutex

// Artifact is a derived population file.
type Artifact struct {
	Path     string
	Fraction float64
	Kept     int
	Total    int
}

// Remove deletes the derived file. A file that is already gone is not an
// error.
func (a Artifact) Remove() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing derived population: %w", err)
	}
	return nil
}

// Sample streams req.Source, keeps each person with probability req.Fraction
// and writes the result to DerivedPath(outputDir, ...). Everything outside
// the person elements is copied unchanged. A partial file is removed when
// sampling fails.
func Sample(ctx context.Context, req *Request, outputDir string) (Artifact, error) {
	if req == nil {
		return Artifact{}, errors.New("sampling population: no request")
	}
	if err := pathutil.CheckReadable(req.Source); err != nil {
		return Artifact{}, fmt.Errorf("sampling population: %w", err)
	}
	art := Artifact{
		Path:     DerivedPath(outputDir, req.Source, req.Fraction),
		Fraction: req.Fraction,
	}

	in, err := xmlio.Open(req.Source)
	if err != nil {
		return Artifact{}, fmt.Errorf("sampling population: %w", err)
	}
	defer in.Close()

	out, err := xmlio.Create(art.Path)
	if err != nil {
		return Artifact{}, fmt.Errorf("creating derived population: %w", err)
	}

	s := &sampler{rng: newStream(req.Tag()), fraction: req.Fraction}
	err = s.copy(ctx, in, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("writing derived population: %w", cerr)
	}
	if err != nil {
		os.Remove(art.Path)
		return Artifact{}, err
	}
	art.Kept, art.Total = s.kept, s.total
	return art, nil
}

// seedFor maps a fraction tag to an rngstream master seed.
func seedFor(tag string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(tag))
	return (h.Sum64()^constants.SampleMasterSeed)%maxSeed + 1
}

func newStream(tag string) *rngstream.RngStream {
	seedMu.Lock()
	defer seedMu.Unlock()
	rngstream.SetRngStreamMasterSeed(seedFor(tag))
	return rngstream.New("plans" + tag)
}

type sampler struct {
	rng      *rngstream.RngStream
	fraction float64
	kept     int
	total    int
}

// copy moves tokens from r to w, dropping persons that lose the draw.
func (s *sampler) copy(ctx context.Context, r io.Reader, w io.Writer) error {
	dec := xml.NewDecoder(r)
	enc := xml.NewEncoder(w)

	depth := 0
	wrote := false
	skipSpace := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.ProcInst:
			// the encoder only accepts the declaration as the first token
			if t.Target == "xml" && wrote {
				continue
			}
		case xml.CharData:
			if skipSpace && len(bytes.TrimSpace(t)) == 0 {
				skipSpace = false
				continue
			}
		case xml.StartElement:
			depth++
			if depth == 2 && t.Name.Local == "person" {
				s.total++
				if s.total%cancelCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				if s.rng.RandU01() >= s.fraction {
					if err := dec.Skip(); err != nil {
						return fmt.Errorf("%w: %s", ErrMalformed, err)
					}
					depth--
					skipSpace = true
					continue
				}
				s.kept++
			}
		case xml.EndElement:
			depth--
		}
		skipSpace = false

		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return fmt.Errorf("writing derived population: %w", err)
		}
		wrote = true
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("writing derived population: %w", err)
	}
	if depth != 0 {
		return fmt.Errorf("%w: unexpected end of document", ErrMalformed)
	}
	return nil
}
