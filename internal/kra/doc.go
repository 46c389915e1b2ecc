// Package kra reads the structure of layered animation documents (.kra
// archives) without decoding any pixel data.
//
// Parse opens the archive, walks maindoc.xml for animatable layers, follows
// each layer's keyframe index, and groups timeline times by the content
// reference (frame blob) they point to. Times that share a reference are
// pixel-identical clones. Blobs below the empty threshold (or missing from the
// archive) are treated as blank and never surface in the result.
//
// Parsing is forensic and best-effort: any structural failure yields an empty
// Document and a log line, never an error, so callers can simply rescan later.
package kra
