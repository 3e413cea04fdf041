// Package media moves frames between video files and the pipeline. Probing
// wraps ffprobe JSON output; decoding and encoding stream raw rgb24 frames
// over ffmpeg pipes so no video codec lives in-process.
//
// Key types:
//   - Info: probed stream metadata (dimensions, frame rate, duration)
//   - FrameSource / FrameSink: the pipeline-facing frame stream contracts
//   - Decoder / Encoder: ffmpeg-backed implementations of those contracts
package media
