package alloc

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joshuapare/heapkit/heap/dirty"
	"github.com/joshuapare/heapkit/internal/format"
)

// DirtyTracker is the interface the allocator reports tag and link writes to.
type DirtyTracker = dirty.DirtyTracker

// logEnv enables allocator debug logging to stderr when set.
const logEnv = "HEAPKIT_LOG_ALLOC"

// Options configures an Allocator.
//
// Use DefaultOptions() for defaults; a nil *Options means the same.
type Options struct {
	// ChunkSize is the minimum number of bytes the arena grows by when no free
	// block fits, and the size of the first chunk added by Init.
	// Must be a multiple of 8 and at least MinBlockSize.
	// Default: 4096
	ChunkSize uint32

	// Trusted skips pointer validation in Free, Realloc, Payload and
	// UsableSize. Invalid pointers then corrupt the heap silently.
	// Default: false
	Trusted bool

	// Logger receives grow events at debug level and contract violations at
	// warn level. When nil, output is discarded unless HEAPKIT_LOG_ALLOC is
	// set, in which case debug output goes to stderr.
	Logger *slog.Logger

	// Dirty, when set, is told about every arena range the allocator writes.
	Dirty DirtyTracker
}

// DefaultOptions returns the default allocator configuration.
func DefaultOptions() Options {
	return Options{
		ChunkSize: format.DefaultChunkSize,
	}
}

func (o *Options) validate() error {
	if o.ChunkSize%format.Alignment != 0 || o.ChunkSize < format.MinBlockSize {
		return fmt.Errorf("%w: chunk size %d must be a multiple of %d and at least %d",
			ErrBadOptions, o.ChunkSize, format.Alignment, format.MinBlockSize)
	}
	return nil
}

// resolveOptions fills zero fields of opts with defaults.
func resolveOptions(opts *Options) (Options, error) {
	o := DefaultOptions()
	if opts != nil {
		o.Trusted = opts.Trusted
		o.Logger = opts.Logger
		o.Dirty = opts.Dirty
		if opts.ChunkSize != 0 {
			o.ChunkSize = opts.ChunkSize
		}
	}
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}
	return o, o.validate()
}

func defaultLogger() *slog.Logger {
	if os.Getenv(logEnv) != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
