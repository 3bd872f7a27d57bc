package video

import (
	"fmt"

	"github.com/drone-control/dcb/internal/config"
)

// transcoderArgs builds the live-transcode invocation: the device's raw
// elementary stream in, MPEG1-TS on stdout for low-latency streaming,
// plus a continuously overwritten still image for snapshot capture.
func transcoderArgs(drone config.DroneConfig, media config.MediaConfig) []string {
	ingest := fmt.Sprintf("udp://0.0.0.0:%d?overrun_nonfatal=1&fifo_size=50000000", drone.VideoPort)

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",

		"-fflags", "+genpts",
		"-i", ingest,

		// Output 1: MPEG1 transport stream on stdout for live fan-out.
		"-map", "0:v:0",
		"-c:v", "mpeg1video",
		"-b:v", "2000k",
		"-maxrate", "4000k",
		"-bufsize", "8000k",
		"-minrate", "1000k",
		"-an",
		"-f", "mpegts",
		"-s", "640x480",
		"-r", "30",
		"-q:v", "5",
		"-tune", "zerolatency",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-flush_packets", "1",
		"-reset_timestamps", "1",
		"pipe:1",

		// Output 2: low-rate JPEG refresh of the current frame.
		"-map", "0:v:0",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-vf", "fps=2",
		"-update", "1",
		"-f", "image2",
		media.CurrentFramePath(),
	}
}

// recorderArgs builds the recording invocation: raw bytes on stdin,
// re-encoded to a streaming-friendly seekable mp4.
func recorderArgs(outputPath string) []string {
	return []string{
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-crf", "23",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}
}
