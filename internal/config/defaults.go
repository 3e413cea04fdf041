package config

const (
	defaultWorkDir   = "~/.local/share/subclean/work"
	defaultOutputDir = "~/.local/share/subclean/output"
	defaultLogDir    = "~/.local/share/subclean/logs"
	defaultAPIBind   = "127.0.0.1:8196"

	defaultMaxResolution     = 1080
	defaultInpaintRadius     = 4
	defaultIntensityFloor    = 0.5
	defaultFrameErrorCeiling = 1.0
	defaultMaxInputMB        = 100

	defaultOCRLanguages     = "eng"
	defaultOCRMinConfidence = 0.4
	defaultMinRegionPx      = 8

	defaultMaskPaddingPx     = 6
	defaultMaskConfirmFrames = 2
	defaultMaskHoldFrames    = 4
	defaultMaskWindowFrames  = 12

	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 5
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 300

	defaultCallbackTimeoutSeconds = 10
	defaultCallbackMaxRetries     = 2

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Processing: Processing{
			MaxResolution:              defaultMaxResolution,
			InpaintRadius:              defaultInpaintRadius,
			SubtitleIntensityThreshold: defaultIntensityFloor,
			FrameErrorCeiling:          defaultFrameErrorCeiling,
			MaxInputMB:                 defaultMaxInputMB,
		},
		Detection: Detection{
			Languages:     defaultOCRLanguages,
			MinConfidence: defaultOCRMinConfidence,
			MinRegionPx:   defaultMinRegionPx,
		},
		Mask: Mask{
			PaddingPx:     defaultMaskPaddingPx,
			ConfirmFrames: defaultMaskConfirmFrames,
			HoldFrames:    defaultMaskHoldFrames,
			WindowFrames:  defaultMaskWindowFrames,
		},
		Workers: Workers{
			Count:              0, // resolved to CPU count at normalize time
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Callback: Callback{
			TimeoutSeconds: defaultCallbackTimeoutSeconds,
			MaxRetries:     defaultCallbackMaxRetries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
