// Package gochannel provides the in-process transport used for local runs and by tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// OutputBuffer is the per-subscriber buffer of step and record events.
const OutputBuffer = 1024

// CreateChannel returns the same GoChannel as publisher and subscriber. Messages published before
// a topic has a subscriber are dropped, so handlers must subscribe before producers start.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)

	return pubSub, pubSub, nil
}
