// Package bundle moves mirrored objects between stores as a deterministic
// tar archive: one blocks/<cid> entry per object plus an optional index.json
// naming them. Archives may be zstd-compressed; Import detects this.
package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/klauspost/compress/zstd"

	"verinews.io/verify/storage"
)

// FormatVersion is the index.json schema version.
const FormatVersion = 1

const (
	blocksDir = "blocks/"
	indexName = "index.json"
)

var epoch = time.Unix(0, 0).UTC()

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Index describes a bundle. Labels are informational; blocks are verified
// against their CIDs regardless of what the index says.
type Index struct {
	Version   int     `json:"version"`
	CIDCodec  string  `json:"cidCodec"`
	Multihash string  `json:"multihash"`
	Blocks    []Block `json:"blocks"`
	Labels    []Label `json:"labels,omitempty"`
}

type Block struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

// Label names a block, e.g. by verification id.
type Label struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// ExportOptions controls Export.
type ExportOptions struct {
	// Labels maps names to exported CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex writes index.json after the blocks.
	IncludeIndex bool
	// Compress wraps the archive in a single zstd frame.
	Compress bool
}

// Export writes the objects ids from cas. The output depends only on the set
// of ids and labels: entries are sorted and tar headers normalized.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) (err error) {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	keys := make([]string, 0, len(uniq))
	for k := range uniq {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var zw *zstd.Encoder
	if opts.Compress {
		if zw, err = zstd.NewWriter(w, zstd.WithEncoderConcurrency(1)); err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
		w = zw
	}
	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
		if zw != nil {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}
	}()

	idx := Index{Version: FormatVersion, CIDCodec: "raw", Multihash: "keccak-256"}
	for _, k := range keys {
		id := uniq[k]
		b, err := cas.Get(id)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", k, err)
		}
		if err := storage.Check(id, b); err != nil {
			return err
		}
		if err := writeFile(tw, blocksDir+k, b); err != nil {
			return err
		}
		idx.Blocks = append(idx.Blocks, Block{CID: k, Size: len(b)})
	}
	if !opts.IncludeIndex {
		return nil
	}

	names := make([]string, 0, len(opts.Labels))
	for name := range opts.Labels {
		if name == "" {
			return errors.New("bundle: empty label")
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := opts.Labels[name]
		if _, ok := uniq[id.String()]; !ok || !id.Defined() {
			return fmt.Errorf("bundle: label %q names a block that is not exported", name)
		}
		idx.Labels = append(idx.Labels, Label{Name: name, CID: id.String()})
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeFile(tw, indexName, append(b, '\n'))
}

// ImportOptions controls Import.
type ImportOptions struct {
	// IgnoreUnknown skips entries other than blocks and the index. By default
	// they fail the import.
	IgnoreUnknown bool
}

// Import copies every block in r into cas, verifying each against the CID in
// its entry name. It returns the bundle's index, or a zero Index when the
// bundle has none.
func Import(r io.Reader, cas storage.CAS, opts ImportOptions) (Index, error) {
	var idx Index
	if cas == nil {
		return idx, errors.New("bundle: nil CAS")
	}
	br := bufio.NewReader(r)
	r = br
	if magic, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return idx, fmt.Errorf("bundle: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return idx, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return idx, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return idx, fmt.Errorf("bundle: unexpected tar entry type %v (%s)", h.Typeflag, name)
		}

		switch {
		case name == indexName:
			if err := json.NewDecoder(tr).Decode(&idx); err != nil {
				return idx, fmt.Errorf("bundle: index: %w", err)
			}
		case strings.HasPrefix(name, blocksDir):
			id, err := cid.Decode(strings.TrimPrefix(name, blocksDir))
			if err != nil || !id.Defined() {
				return idx, storage.ErrInvalidCID
			}
			if _, dup := seen[id.String()]; dup {
				return idx, fmt.Errorf("bundle: duplicate block entry: %s", id)
			}
			seen[id.String()] = struct{}{}
			payload, err := io.ReadAll(tr)
			if err != nil {
				return idx, err
			}
			if err := storage.Check(id, payload); err != nil {
				return idx, err
			}
			if _, err := cas.Put(payload); err != nil {
				return idx, err
			}
		case opts.IgnoreUnknown:
			_, _ = io.Copy(io.Discard, tr)
		default:
			return idx, fmt.Errorf("bundle: unknown entry: %s", name)
		}
	}
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Format:   tar.FormatUSTAR,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

// cleanTarPath normalizes an entry name and rejects empty, "." and ".."
// components.
func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
