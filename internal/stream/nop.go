package stream

import (
	"io"
	"log/slog"
)

// nopLogger is used by parsers constructed without an explicit logger.
var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
