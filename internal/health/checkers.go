package health

import (
	"context"
	"errors"
)

// Gateway returns a [Checker] that fails while the Discord gateway
// websocket is down. connected is sampled on every probe.
func Gateway(connected func() bool) Checker {
	return Checker{
		Name: "gateway",
		Check: func(context.Context) error {
			if !connected() {
				return errors.New("gateway disconnected")
			}
			return nil
		},
	}
}
