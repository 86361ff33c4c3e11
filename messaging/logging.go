// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import "go.uber.org/zap"

// defaultLogger builds the fallback logger used when NewService is
// called without one, a plain production zap config so a binary that
// forgets to wire its own logger still gets structured, leveled output
// instead of silence.
func defaultLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
