package kra

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"framesel/internal/logging"
)

// DefaultEmptyThreshold is the blob size, in bytes, below which frame content
// is treated as blank. Default-pixel frames are typically ~56 bytes.
const DefaultEmptyThreshold int64 = 100

const mainDocName = "maindoc.xml"

var (
	// ErrNoMainDoc indicates the archive lacks maindoc.xml.
	ErrNoMainDoc = errors.New("archive has no maindoc.xml")
)

// ContentRef identifies a stored pixel blob inside the archive, e.g. "layer5.f3".
type ContentRef string

// KeyframeGroup is one content reference and every timeline time showing it.
type KeyframeGroup struct {
	Ref            ContentRef
	Times          []int
	Representative int
	BlobSize       int64
	Empty          bool
}

// LayerCloneMap describes the clone structure of one animated layer.
type LayerCloneMap struct {
	ID            string
	Name          string
	KeyframesFile string
	Groups        []KeyframeGroup
	// BlankTimes holds keyframe times whose content is missing or below the
	// empty threshold, sorted ascending.
	BlankTimes []int
}

// Refs returns the content references of every group, in group order.
func (l LayerCloneMap) Refs() []ContentRef {
	refs := make([]ContentRef, 0, len(l.Groups))
	for _, g := range l.Groups {
		refs = append(refs, g.Ref)
	}
	return refs
}

// RefAt returns the content reference of the keyframe placed exactly at t.
func (l LayerCloneMap) RefAt(t int) (ContentRef, bool) {
	for _, g := range l.Groups {
		idx := sort.SearchInts(g.Times, t)
		if idx < len(g.Times) && g.Times[idx] == t {
			return g.Ref, true
		}
	}
	return "", false
}

// ContentAt returns the content reference displayed at time t: that of the
// latest keyframe at or before t. Times before the first keyframe, or held
// from a blank keyframe, have no content.
func (l LayerCloneMap) ContentAt(t int) (ContentRef, bool) {
	shown, ref := -1, ContentRef("")
	for _, g := range l.Groups {
		if at := latestAtOrBefore(g.Times, t); at > shown {
			shown, ref = at, g.Ref
		}
	}
	if shown < 0 || latestAtOrBefore(l.BlankTimes, t) > shown {
		return "", false
	}
	return ref, true
}

func latestAtOrBefore(times []int, t int) int {
	idx := sort.SearchInts(times, t+1) - 1
	if idx < 0 {
		return -1
	}
	return times[idx]
}

// Group returns the group for ref.
func (l LayerCloneMap) Group(ref ContentRef) (KeyframeGroup, bool) {
	for _, g := range l.Groups {
		if g.Ref == ref {
			return g, true
		}
	}
	return KeyframeGroup{}, false
}

// Document maps normalized layer IDs to their clone structure.
type Document map[string]LayerCloneMap

// Lookup resolves a layer ID in any of the spellings the host reports
// (braced, upper-case) to the parsed entry.
func (d Document) Lookup(id string) (LayerCloneMap, bool) {
	layer, ok := d[NormalizeLayerID(id)]
	return layer, ok
}

// LayerIDs returns the document's layer IDs sorted by their first
// representative time, then by ID.
func (d Document) LayerIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := firstTime(d[ids[i]]), firstTime(d[ids[j]])
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}

func firstTime(l LayerCloneMap) int {
	if len(l.Groups) == 0 {
		return int(^uint(0) >> 1)
	}
	return l.Groups[0].Representative
}

type options struct {
	threshold int64
	logger    *slog.Logger
}

// Option configures Parse.
type Option func(*options)

// WithEmptyThreshold overrides DefaultEmptyThreshold.
func WithEmptyThreshold(bytes int64) Option {
	return func(o *options) {
		if bytes >= 0 {
			o.threshold = bytes
		}
	}
}

// WithLogger routes parse diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{threshold: DefaultEmptyThreshold}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = logging.NewComponentLogger(o.logger, "kra")
	return o
}

// Parse reads the archive at path. Any failure yields an empty Document.
func Parse(path string, opts ...Option) Document {
	o := buildOptions(opts)
	logger := o.logger.With(logging.String(logging.FieldDocument, path))

	reader, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("document not found")
		} else {
			logging.WarnWithContext(logger, "document archive unreadable", "parse_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "save the document again or check that it is a .kra file"),
				logging.String(logging.FieldImpact, "no clone groups shown for this document"),
			)
		}
		return Document{}
	}
	defer reader.Close()

	return parseArchive(&reader.Reader, o, logger)
}

// ParseReader reads an archive from r. Any failure yields an empty Document.
func ParseReader(r io.ReaderAt, size int64, opts ...Option) Document {
	o := buildOptions(opts)
	reader, err := zip.NewReader(r, size)
	if err != nil {
		logging.WarnWithContext(o.logger, "document archive unreadable", "parse_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no clone groups shown for this document"),
		)
		return Document{}
	}
	return parseArchive(reader, o, o.logger)
}

func parseArchive(reader *zip.Reader, o options, logger *slog.Logger) Document {
	doc, err := readDocument(reader, o.threshold)
	if err != nil {
		logging.WarnWithContext(logger, "document structure unreadable", "parse_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the archive may be truncated or from an unsupported version"),
			logging.String(logging.FieldImpact, "no clone groups shown for this document"),
		)
		return Document{}
	}
	logger.Debug("document parsed", logging.Int("layers", len(doc)))
	return doc
}

func readDocument(reader *zip.Reader, threshold int64) (Document, error) {
	files := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		files[f.Name] = f
	}

	main, ok := files[mainDocName]
	if !ok {
		return nil, ErrNoMainDoc
	}
	layers, err := readLayers(main)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mainDocName, err)
	}

	doc := Document{}
	for _, layer := range layers {
		index := findBySuffix(reader.File, layer.KeyframesFile)
		if index == nil {
			continue
		}
		frames, err := readKeyframes(index)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", index.Name, err)
		}
		if len(frames) == 0 {
			continue
		}

		dir := path.Dir(index.Name)
		sizeOf := func(ref ContentRef) (int64, bool) {
			blob, ok := files[path.Join(dir, string(ref))]
			if !ok {
				return 0, false
			}
			return int64(blob.UncompressedSize64), true
		}
		groups, blank := splitEmpty(GroupKeyframes(frames, sizeOf, threshold))
		if len(groups) == 0 {
			continue
		}
		layer.Groups = groups
		layer.BlankTimes = blank
		doc[layer.ID] = layer
	}
	return doc, nil
}

// findBySuffix returns the first archive entry whose path ends with the
// path segments of name.
func findBySuffix(files []*zip.File, name string) *zip.File {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return nil
	}
	for _, f := range files {
		if f.Name == name || strings.HasSuffix(f.Name, "/"+name) {
			return f
		}
	}
	return nil
}

func splitEmpty(groups []KeyframeGroup) ([]KeyframeGroup, []int) {
	var kept []KeyframeGroup
	var blank []int
	for _, g := range groups {
		if g.Empty {
			blank = append(blank, g.Times...)
			continue
		}
		kept = append(kept, g)
	}
	sort.Ints(blank)
	return kept, blank
}
