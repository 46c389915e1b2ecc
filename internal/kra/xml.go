package kra

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Keyframe is one entry of a layer's keyframe index.
type Keyframe struct {
	Time int
	Ref  ContentRef
}

func readLayers(f *zip.File) ([]LayerCloneMap, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var layers []LayerCloneMap
	seen := map[string]int{}
	err = walkElements(rc, func(el xml.StartElement) error {
		if !strings.HasSuffix(el.Name.Local, "layer") {
			return nil
		}
		id := attr(el, "uuid")
		keyframes := attr(el, "keyframes")
		if id == "" || keyframes == "" {
			return nil
		}
		layer := LayerCloneMap{
			ID:            NormalizeLayerID(id),
			Name:          attr(el, "name"),
			KeyframesFile: keyframes,
		}
		if idx, ok := seen[layer.ID]; ok {
			layers[idx] = layer
			return nil
		}
		seen[layer.ID] = len(layers)
		layers = append(layers, layer)
		return nil
	})
	return layers, err
}

func readKeyframes(f *zip.File) ([]Keyframe, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var frames []Keyframe
	err = walkElements(rc, func(el xml.StartElement) error {
		if !strings.HasSuffix(el.Name.Local, "keyframe") {
			return nil
		}
		rawTime, hasTime := lookupAttr(el, "time")
		ref := attr(el, "frame")
		if !hasTime || ref == "" {
			return nil
		}
		t, err := strconv.Atoi(strings.TrimSpace(rawTime))
		if err != nil {
			return fmt.Errorf("keyframe time %q: %w", rawTime, err)
		}
		frames = append(frames, Keyframe{Time: t, Ref: ContentRef(ref)})
		return nil
	})
	return frames, err
}

// walkElements streams r and calls fn for every start element. Namespaces are
// ignored by callers matching on Name.Local.
func walkElements(r io.Reader, fn func(xml.StartElement) error) error {
	decoder := xml.NewDecoder(r)
	decoder.Strict = true
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if el, ok := tok.(xml.StartElement); ok {
			if err := fn(el); err != nil {
				return err
			}
		}
	}
}

func attr(el xml.StartElement, local string) string {
	value, _ := lookupAttr(el, local)
	return value
}

func lookupAttr(el xml.StartElement, local string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}
