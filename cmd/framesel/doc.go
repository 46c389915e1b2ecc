// Package main hosts the framesel CLI entrypoint and command graph.
//
// The Cobra-based command tree exposes the content-identity pipeline without
// a host application: scanning saved documents for clone groups, inspecting
// and pruning the thumbnail cache, maintaining the frame registry, watching
// a document for saves, and running environment checks. It centralizes
// configuration resolution and structured logging setup so subcommands can
// focus on output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
