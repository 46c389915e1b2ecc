// Package host defines the capability interfaces framesel needs from the
// painting application, plus the operations built on them: rendering a frame
// thumbnail, cloning a frame natively, and choosing the nearest clone source.
//
// Nothing here talks to a real application; integrations implement the
// interfaces and hosttest provides an in-memory fake.
package host
