package exception

import "github.com/yanun0323/errors"

var (
	ErrNotInitialized    = errors.New("engine: not initialized")
	ErrAlreadyRunning    = errors.New("engine: already running")
	ErrNotRunning        = errors.New("engine: not running")
	ErrNoFeeds           = errors.New("engine: no feeds registered")
	ErrNilSubscriber     = errors.New("engine: nil subscriber callback")
	ErrWorkersConfig     = errors.New("engine: worker count must be >= 1")
	ErrBufferConfig      = errors.New("engine: buffer capacity must be a power of two >= 2")
	ErrWindowConfig      = errors.New("engine: aggregator window must be >= 2")
	ErrSubscribeAfterRun = errors.New("engine: feeds must be registered before initialize")
)
