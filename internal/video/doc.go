// Package video supervises the two external transcoding subprocesses:
// the live transcoder, whose stdout chunks are fanned out to stream
// subscribers and teed into the recorder, and the on-demand recorder,
// which turns live bytes into a seekable mp4 file.
//
// At most one of each subprocess exists at any time. The transcoder
// carries a fixed-delay restart policy that stays armed while the last
// intended command is "streamon"; the recorder is never auto-restarted.
package video
