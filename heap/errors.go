package heap

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is the package-level diagnostic sink every print-* switch and
// fatal error writes through. It defaults to a handler writing to
// io.Discard so embedding this package costs nothing until the host
// opts in (a discard-by-default logger).
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fatal reports an unrecoverable allocator error and terminates the
// process. spec.md §7 forbids local recovery of any of these errors;
// os.Exit is used instead of panic because panic is interceptable by
// an enclosing recover() in the host process, which a fatal heap
// corruption must not allow.
func fatal(reason string, attrs ...slog.Attr) {
	Logger.LogAttrs(context.Background(), slog.LevelError, reason, attrs...)
	os.Exit(2)
}

func doubleFree(addr uintptr) {
	fatal("DoubleFree", slog.Uint64("addr", uint64(addr)))
}

func tagMismatch(addr uintptr, want, got byte) {
	fatal("DoubleFree: tag mismatch on free",
		slog.Uint64("addr", uint64(addr)),
		slog.Int("want_tag", int(want)),
		slog.Int("got_tag", int(got)))
}

func stateCorruption(addr uintptr, got byte) {
	fatal("heap: super-page state corruption",
		slog.Uint64("addr", uint64(addr)),
		slog.Int("state", int(got)))
}

func outOfMemory(context string, err error) {
	fatal("heap: out of memory",
		slog.String("context", context),
		slog.Any("err", err))
}
