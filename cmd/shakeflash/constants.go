package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_ABS = 0x03

	SYN_REPORT = 0x00

	ABS_X = 0x00
	ABS_Y = 0x01
	ABS_Z = 0x02

	// EVIOCSCLOCKID is _IOW('E', 0xa0, int).
	EVIOCSCLOCKID = 0x400445a0
)

// Parameter keys. These are also the persistence keys, so they must not change.
const (
	keyShakeForceThreshold = "shakeForceThreshold"
	keyMaxShakeGap         = "maxTimeBetweenConsecutiveShakes"
	keyCooldownTime        = "cooldownTime"
	keyFlashlightTimeout   = "flashlightTimeout"
)

const (
	defaultSocketPath = "/tmp/shakeflash.sock"
	defaultHTTPPort   = 3002
	defaultTorchLED   = "/sys/class/leds/white:flash"

	// Queue sizes between the input readers, the sample loop and the effects loop.
	sampleQueueSize    = 256
	triggerQueueSize   = 16
	broadcastQueueSize = 64

	// statusTimeout bounds how long an IPC or WS client waits for the sample loop.
	statusTimeout = time.Second
)
