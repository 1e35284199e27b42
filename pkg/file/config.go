// Package file implements the Smart File Object (C7): a stream adapter
// that splits writes into fixed-size blocks handed to the transfer
// manager and reassembles reads from the blocks it hands back.
package file

import "regexp"

// TmpPattern matches a basename pattern exempt from the normal block-size
// cap: editors and sync tools create small sentinel/lock files (e.g.
// "._foo") that should stay in a single local-only block instead of
// being split and uploaded.
type TmpPattern struct {
	Re      *regexp.Regexp
	MaxSize int64
}

// DefaultTmpFilePatterns returns the default temp-file pattern list.
func DefaultTmpFilePatterns() []TmpPattern {
	return []TmpPattern{
		{Re: regexp.MustCompile(`^\._.+`), MaxSize: 4096},
	}
}

// Config tunes the block-splitting and temp-file detection behaviour of
// every File a Store opens.
type Config struct {
	// MaxDataBlockSize bounds how large one block may grow: a write
	// transaction spills into a new block once the current one reaches
	// this many bytes.
	MaxDataBlockSize int64

	// ReplicaCount is the default replica fan-out passed to every
	// transaction a Store opens.
	ReplicaCount uint8

	// BlockDir is the directory local data block files are created in.
	BlockDir string

	// TmpFilePatterns governs which paths bypass MaxDataBlockSize and are
	// never uploaded to the gateway. Nil selects DefaultTmpFilePatterns.
	TmpFilePatterns []TmpPattern
}

func (c Config) tmpPatterns() []TmpPattern {
	if c.TmpFilePatterns != nil {
		return c.TmpFilePatterns
	}
	return DefaultTmpFilePatterns()
}
