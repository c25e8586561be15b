package exception

import "github.com/yanun0323/errors"

var (
	ErrFeedNotConnected     = errors.New("feed: not connected")
	ErrFeedAlreadyConnected = errors.New("feed: already connected")
	ErrFeedAlreadyStarted   = errors.New("feed: already started")
	ErrFeedStopped          = errors.New("feed: stopped")
	ErrFeedUnknownSymbol    = errors.New("feed: symbol not subscribed")
)
