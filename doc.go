// Package anchorhold is a local-first persistence engine for spatial anchors.
//
// An _anchor_ is a positioned, annotated object:
// a 4×4 transform,
// a bag of dynamically typed metadata,
// and a soft-delete marker.
// Anchors belong to _spaces_,
// containers that also hold one opaque spatial payload blob
// (a captured world map, say)
// which this module stores but never interprets.
//
// Every change to an anchor appends exactly one immutable event
// to a per-space, append-only log.
// For a given anchor the event versions are 1, 2, 3, … with no gaps,
// so the log is a complete history:
// the timeline package folds it back into the state of a whole space
// at any past instant,
// computes diffs between two instants,
// and reconstructs a single anchor at any version
// (which is how rollback works —
// rollback never truncates history,
// it appends a "restored" event and moves forward).
//
// The local durable store is the source of truth.
// A remote store,
// when one is configured,
// is a durable replica kept in eventual agreement by the engine package:
// failed uploads land in a persisted retry queue,
// and an explicit sync drains the queue,
// pushes everything modified since the last sync,
// and pulls remote changes under a last-write-wins rule
// (ties favor local).
//
// This root package holds the domain types and the error taxonomy.
// Storage backends live under store/,
// created through a registry from JSON configuration;
// the remote replica boundary is under remote/;
// the orchestrating engine is in engine/.
package anchorhold
