package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"framesel/internal/drawmon"
	"framesel/internal/host"
	"framesel/internal/kra"
	"framesel/internal/logging"
	"framesel/internal/registry"
	"framesel/internal/thumbgen"
)

var (
	// ErrNoLayer is returned when an operation needs a layer context and none is set.
	ErrNoLayer = errors.New("no layer selected")
	// ErrUnknownContent is returned when a reference or time is absent from the last parse.
	ErrUnknownContent = errors.New("content not found in last parse")
)

// Cache is the subset of the thumbnail cache the session drives.
type Cache interface {
	Retain(doc, layer string, keep []kra.ContentRef) int
	InvalidateLayer(doc, layer string)
	InvalidateEntry(doc, layer string, ref kra.ContentRef)
}

// Registry persists registered frames.
type Registry interface {
	ReplaceLayer(ctx context.Context, doc, layer, layerName string, groups []kra.KeyframeGroup) error
	ClearLayer(ctx context.Context, doc, layer string) (int64, error)
	Frames(ctx context.Context, doc, layer string) ([]registry.Frame, error)
	Layers(ctx context.Context) ([]registry.LayerSummary, error)
}

// Pipeline accepts thumbnail work.
type Pipeline interface {
	Request(entries []thumbgen.Entry)
	Pending() []thumbgen.Entry
	Subscribe(fn func(thumbgen.Ready)) func()
}

// RefreshResult summarizes one Refresh.
type RefreshResult struct {
	Document      string `json:"document"`
	Layers        int    `json:"layers"`
	Groups        int    `json:"groups"`
	Evicted       int    `json:"evicted"`
	DroppedLayers int    `json:"dropped_layers"`
	Requested     int    `json:"requested"`
}

// Option configures a Session.
type Option func(*Session)

// WithRegistry persists registered frames on every refresh.
func WithRegistry(r Registry) Option {
	return func(s *Session) {
		s.registry = r
	}
}

// WithParseOptions passes options to the document parser.
func WithParseOptions(opts ...kra.Option) Option {
	return func(s *Session) {
		s.parseOpts = append(s.parseOpts, opts...)
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session tracks one document and the layer currently in view.
type Session struct {
	path      string
	doc       string
	cache     Cache
	pipeline  Pipeline
	registry  Registry
	parseOpts []kra.Option
	logger    *slog.Logger

	parsed   kra.Document
	layer    string
	consumer func(thumbgen.Ready)
	unsub    func()
}

// DocumentKey derives the document identity used for cache buckets and the
// registry. It is the file name, so data follows a document that is moved.
func DocumentKey(path string) string {
	return filepath.Base(strings.TrimSpace(path))
}

// New creates a session for the document saved at path. The pipeline may be
// nil, in which case no thumbnails are requested.
func New(path string, cache Cache, pipeline Pipeline, opts ...Option) *Session {
	s := &Session{
		path:     path,
		doc:      DocumentKey(path),
		cache:    cache,
		pipeline: pipeline,
		parsed:   kra.Document{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.NewComponentLogger(s.logger, "session").With(
		logging.String(logging.FieldDocument, s.doc),
	)
	s.parseOpts = append(s.parseOpts, kra.WithLogger(s.logger))
	if s.pipeline != nil {
		s.unsub = s.pipeline.Subscribe(s.deliver)
	}
	return s
}

// Close detaches the session from the pipeline.
func (s *Session) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// Document returns the document identity.
func (s *Session) Document() string {
	return s.doc
}

// Path returns the document file path.
func (s *Session) Path() string {
	return s.path
}

// Parsed returns the result of the last successful refresh.
func (s *Session) Parsed() kra.Document {
	return s.parsed
}

// Layer returns the current layer context.
func (s *Session) Layer() string {
	return s.layer
}

// SetLayer changes the layer context. IDs are normalized, so host-reported
// braced or upper-case UUIDs are accepted. An empty layer delivers every
// Ready event.
func (s *Session) SetLayer(layer string) {
	s.layer = kra.NormalizeLayerID(layer)
}

// OnReady sets the consumer of context-matching Ready events.
func (s *Session) OnReady(fn func(thumbgen.Ready)) {
	s.consumer = fn
}

func (s *Session) deliver(r thumbgen.Ready) {
	if s.consumer == nil || r.Document != s.doc {
		return
	}
	if s.layer != "" && r.Layer != s.layer {
		return
	}
	s.consumer(r)
}

// Refresh re-parses the saved document. For each layer it evicts thumbnails
// whose reference disappeared, drops the buckets of layers that no longer
// exist, replaces the layer's registered frames, and requests thumbnails at
// every group's representative time.
//
// A parse that yields nothing leaves cache, registry and state untouched.
func (s *Session) Refresh(ctx context.Context) (RefreshResult, error) {
	result := RefreshResult{Document: s.doc}
	parsed := kra.Parse(s.path, s.parseOpts...)
	if len(parsed) == 0 {
		logging.WarnWithContext(s.logger, "document yielded no animated layers", "refresh_empty",
			logging.String("path", s.path),
			logging.String(logging.FieldErrorHint, "save the document and check it has animated layers"),
			logging.String(logging.FieldImpact, "thumbnails and registered frames were left as they were"),
		)
		return result, nil
	}

	vanished, err := s.vanishedLayers(ctx, parsed)
	if err != nil {
		return result, err
	}
	for _, layer := range vanished {
		if s.cache != nil {
			s.cache.InvalidateLayer(s.doc, layer)
		}
		if s.registry != nil {
			if _, err := s.registry.ClearLayer(ctx, s.doc, layer); err != nil {
				return result, fmt.Errorf("clear vanished layer %s: %w", layer, err)
			}
		}
		result.DroppedLayers++
	}

	var entries []thumbgen.Entry
	for _, id := range parsed.LayerIDs() {
		layer := parsed[id]
		result.Layers++
		result.Groups += len(layer.Groups)
		if s.cache != nil {
			result.Evicted += s.cache.Retain(s.doc, id, layer.Refs())
		}
		if s.registry != nil {
			if err := s.registry.ReplaceLayer(ctx, s.doc, id, layer.Name, layer.Groups); err != nil {
				return result, fmt.Errorf("register layer %s: %w", id, err)
			}
		}
		for _, g := range layer.Groups {
			entries = append(entries, thumbgen.Entry{
				Document: s.doc,
				Layer:    id,
				Time:     g.Representative,
				Ref:      g.Ref,
			})
		}
	}
	s.parsed = parsed

	if s.pipeline != nil {
		s.pipeline.Request(entries)
		result.Requested = len(s.pipeline.Pending())
	}
	s.logger.Info("document refreshed",
		logging.Int("layers", result.Layers),
		logging.Int("groups", result.Groups),
		logging.Int("evicted", result.Evicted),
		logging.Int("dropped_layers", result.DroppedLayers),
		logging.Int("requested", result.Requested),
	)
	return result, nil
}

func (s *Session) vanishedLayers(ctx context.Context, parsed kra.Document) ([]string, error) {
	known := map[string]struct{}{}
	for id := range s.parsed {
		known[id] = struct{}{}
	}
	if s.registry != nil {
		layers, err := s.registry.Layers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list registered layers: %w", err)
		}
		for _, l := range layers {
			if l.Document == s.doc {
				known[l.Layer] = struct{}{}
			}
		}
	}
	var out []string
	for id := range known {
		if _, ok := parsed[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// Reload requests thumbnails for the current layer's registered frames
// without re-parsing, re-deriving cache keys from the registry.
func (s *Session) Reload(ctx context.Context) (int, error) {
	if s.layer == "" {
		return 0, ErrNoLayer
	}
	if s.registry == nil || s.pipeline == nil {
		return 0, nil
	}
	frames, err := s.registry.Frames(ctx, s.doc, s.layer)
	if err != nil {
		return 0, fmt.Errorf("load registered frames: %w", err)
	}
	entries := make([]thumbgen.Entry, 0, len(frames))
	for _, f := range frames {
		if f.Ref == "" {
			continue
		}
		entries = append(entries, thumbgen.Entry{Document: s.doc, Layer: s.layer, Time: f.Time, Ref: f.Ref})
	}
	s.pipeline.Request(entries)
	return len(entries), nil
}

// Attach routes a drawing monitor's refresh signals to HandleDrawing.
func (s *Session) Attach(mon *drawmon.Monitor) {
	if mon != nil {
		mon.Subscribe(s.HandleDrawing)
	}
}

// HandleDrawing invalidates the thumbnail of the content shown at the
// signalled time on the current layer and re-requests it ahead of any
// pending work. A time between keyframes resolves to the keyframe it holds;
// times the last parse cannot resolve are ignored.
func (s *Session) HandleDrawing(sig drawmon.RefreshNeeded) {
	if s.layer == "" {
		return
	}
	layer, ok := s.parsed.Lookup(s.layer)
	if !ok {
		s.logger.Debug("drawing on unparsed layer ignored", logging.String(logging.FieldLayer, s.layer))
		return
	}
	ref, ok := layer.ContentAt(sig.Time)
	if !ok {
		s.logger.Debug("drawing at unmapped time ignored",
			logging.String(logging.FieldLayer, s.layer),
			logging.Int(logging.FieldTime, sig.Time),
		)
		return
	}
	if s.cache != nil {
		s.cache.InvalidateEntry(s.doc, layer.ID, ref)
	}
	s.logger.Debug("thumbnail invalidated after drawing",
		logging.String(logging.FieldLayer, layer.ID),
		logging.String(logging.FieldContentRef, string(ref)),
		logging.Int(logging.FieldTime, sig.Time),
	)
	if s.pipeline == nil {
		return
	}
	entries := []thumbgen.Entry{{Document: s.doc, Layer: layer.ID, Time: sig.Time, Ref: ref}}
	for _, e := range s.pipeline.Pending() {
		if e.Document == s.doc && e.Layer == layer.ID && e.Ref == ref {
			continue
		}
		entries = append(entries, e)
	}
	s.pipeline.Request(entries)
}

// CloneTo clones the content identified by ref on the current layer onto
// target, using the group member nearest to target as the source.
func (s *Session) CloneTo(h host.Cloner, ref kra.ContentRef, target int) (int, error) {
	if s.layer == "" {
		return 0, ErrNoLayer
	}
	layer, ok := s.parsed.Lookup(s.layer)
	if !ok {
		return 0, fmt.Errorf("layer %s: %w", s.layer, ErrUnknownContent)
	}
	group, ok := layer.Group(ref)
	if !ok {
		return 0, fmt.Errorf("content %s: %w", ref, ErrUnknownContent)
	}
	source, err := host.SmartClone(h, group, target)
	if err != nil {
		return source, err
	}
	s.logger.Info("frame cloned",
		logging.String(logging.FieldLayer, layer.ID),
		logging.String(logging.FieldContentRef, string(ref)),
		logging.Int("source_time", source),
		logging.Int("target_time", target),
	)
	return source, nil
}
