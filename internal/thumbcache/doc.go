// Package thumbcache stores rendered frame thumbnails keyed by content, not by
// timeline position.
//
// A key is (document, layer, content reference). Tier 1 is an in-process map;
// tier 2 is one PNG per entry under <root>/<md5(document::layer)>/, so the
// cache survives restarts and arbitrary document or layer names stay
// filesystem-safe. Moving a clone along the timeline never touches the cache:
// only a redraw (explicit invalidation) or a rescan that no longer references
// the blob (Retain) removes entries.
//
// Disk failures are logged and swallowed; the memory tier stays authoritative
// for the session.
package thumbcache
