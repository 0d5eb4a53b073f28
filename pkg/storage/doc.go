// Package storage manages the on-disk checkpoint tree.
//
// Checkpoints live under a fixed root directory with one subdirectory per
// model variant:
//
//	checkpoints/
//	    dynamicrafter_256_v1/model.ckpt
//	    dynamicrafter_512_v1/model.ckpt
//	    ...
//
// In-flight downloads are written to <file>.partial and promoted to their
// final name with an atomic rename only once complete, so a finished file on
// disk is always a whole file. Partial files survive interruption and are
// picked up again for resume.
//
// A per-variant advisory file lock serializes concurrent fetches of the same
// variant across processes.
package storage
