package suno

import (
	"context"
	"log"
	"time"
)

// ExpiryEvent is sent by WatchExpiry.
type ExpiryEvent struct {
	// Expired is set once the credential is past its expiry.
	Expired bool
	// Left is the remaining lifetime for an expiring soon event.
	Left time.Duration
}

// WatchExpiry checks the stored credential every interval and calls notify
// once per credential when it enters the threshold window and again when it
// expires. It returns when ctx is done.
func WatchExpiry(ctx context.Context, store *TokenStore, interval, threshold time.Duration, notify func(ExpiryEvent)) {
	if interval <= 0 {
		interval = time.Minute
	}
	if threshold <= 0 {
		threshold = 5 * time.Minute
	}
	var warned, expired string
	check := func() {
		cred, err := store.Peek(ctx)
		if err != nil {
			log.Println("❌", err)
			return
		}
		if cred == nil {
			return
		}
		left := cred.Expiry.Sub(store.now())
		switch {
		case left <= 0:
			if expired != cred.Token {
				expired = cred.Token
				notify(ExpiryEvent{Expired: true})
			}
		case left <= threshold:
			if warned != cred.Token {
				warned = cred.Token
				notify(ExpiryEvent{Left: left})
			}
		}
	}
	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
