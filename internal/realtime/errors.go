package realtime

import "errors"

// ErrClosed はクローズ済みのDatabaseを操作した場合に返る。
var ErrClosed = errors.New("realtime: database closed")
