// Package session coordinates one open document: it re-parses the saved
// archive, evicts stale thumbnails by diff, persists registered frames,
// feeds the thumbnail pipeline, and turns drawing-activity signals into
// precise cache invalidations.
//
// Session methods must run on the event loop that drives the pipeline.
// Ready events are delivered to the consumer only when they match the
// current layer context; results for other layers still land in the cache.
package session
