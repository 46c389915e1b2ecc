// Package thumbgen renders missing thumbnails one at a time on the event loop.
//
// The host's seek-and-refresh is asynchronous relative to pixel reads, so a
// second seek issued before the first settles returns stale pixels. The
// pipeline therefore keeps exactly one job in flight and re-arms a one-shot
// timer (the settle delay) only after the previous job's handler has fully
// returned, including any Ready subscribers it called.
package thumbgen
