package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// Capturer acquires fresh local tracks. Every call returns new tracks; the
// caller owns them and must Stop them.
type Capturer interface {
	Capture(ctx context.Context, kind Kind, streamID string) (*LocalTrack, error)
	CaptureScreen(ctx context.Context, streamID string) ([]*LocalTrack, error)
}

const opusFrameDuration = 20 * time.Millisecond

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const vp8FrameInterval = 100 * time.Millisecond

// vp8BlankFrame is a shown 16x16 VP8 key frame. Both partitions are zero
// bytes, which decode as all-zero decisions: one macroblock with DC
// prediction and no coefficients.
var vp8BlankFrame = append([]byte{
	0x10, 0x02, 0x00, // key frame, version 0, shown, first partition 16 bytes
	0x9d, 0x01, 0x2a, // start code
	0x10, 0x00, 0x10, 0x00, // 16x16, no scaling
}, make([]byte, 32)...)

// ErrUnknownKind is returned for a capture request of an unsupported kind.
var ErrUnknownKind = errors.New("unknown media kind")

// SyntheticCapturer produces tracks without devices. Audio tracks carry Opus
// silence and video tracks a blank key frame ten times a second, so the far
// side sees media flowing.
type SyntheticCapturer struct{}

func (SyntheticCapturer) Capture(ctx context.Context, kind Kind, streamID string) (*LocalTrack, error) {
	switch kind {
	case KindAudio:
		track, err := newLocalTrack(webrtc.MimeTypeOpus, KindAudio, streamID)
		if err != nil {
			return nil, err
		}
		track.start(func(ctx context.Context) error {
			ticker := time.NewTicker(opusFrameDuration)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: opusFrameDuration}); err != nil {
						return err
					}
				}
			}
		})
		return track, nil
	case KindVideo:
		track, err := newLocalTrack(webrtc.MimeTypeVP8, KindVideo, streamID)
		if err != nil {
			return nil, err
		}
		track.start(func(ctx context.Context) error {
			ticker := time.NewTicker(vp8FrameInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := track.WriteSample(pionmedia.Sample{Data: vp8BlankFrame, Duration: vp8FrameInterval}); err != nil {
						return err
					}
				}
			}
		})
		return track, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (c SyntheticCapturer) CaptureScreen(ctx context.Context, streamID string) ([]*LocalTrack, error) {
	track, err := c.Capture(ctx, KindVideo, streamID)
	if err != nil {
		return nil, err
	}
	return []*LocalTrack{track}, nil
}

// FileCapturer loops IVF video and Ogg Opus audio files into local tracks.
// Kinds without a configured file fall back to SyntheticCapturer.
type FileCapturer struct {
	VideoFile  string
	AudioFile  string
	ScreenFile string
}

func (c FileCapturer) Capture(ctx context.Context, kind Kind, streamID string) (*LocalTrack, error) {
	switch {
	case kind == KindVideo && c.VideoFile != "":
		return openIVF(c.VideoFile, streamID)
	case kind == KindAudio && c.AudioFile != "":
		return openOgg(c.AudioFile, streamID)
	}
	return SyntheticCapturer{}.Capture(ctx, kind, streamID)
}

func (c FileCapturer) CaptureScreen(ctx context.Context, streamID string) ([]*LocalTrack, error) {
	if c.ScreenFile == "" {
		return SyntheticCapturer{}.CaptureScreen(ctx, streamID)
	}
	track, err := openIVF(c.ScreenFile, streamID)
	if err != nil {
		return nil, err
	}
	return []*LocalTrack{track}, nil
}

func mimeForFourCC(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("unsupported ivf codec %q", fourcc)
}

func openIVF(path, streamID string) (*LocalTrack, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}

	reader, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read ivf header: %w", err)
	}

	mimeType, err := mimeForFourCC(header.FourCC)
	if err != nil {
		file.Close()
		return nil, err
	}

	track, err := newLocalTrack(mimeType, KindVideo, streamID)
	if err != nil {
		file.Close()
		return nil, err
	}

	interval := 33 * time.Millisecond
	if header.TimebaseDenominator != 0 {
		interval = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	track.start(func(ctx context.Context) error {
		defer file.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				if _, err := file.Seek(0, io.SeekStart); err != nil {
					return err
				}
				if reader, _, err = ivfreader.NewWith(file); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}

			if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
				return err
			}
		}
	})
	return track, nil
}

func openOgg(path, streamID string) (*LocalTrack, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}

	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read ogg header: %w", err)
	}

	track, err := newLocalTrack(webrtc.MimeTypeOpus, KindAudio, streamID)
	if err != nil {
		file.Close()
		return nil, err
	}

	track.start(func(ctx context.Context) error {
		defer file.Close()
		ticker := time.NewTicker(opusFrameDuration)
		defer ticker.Stop()

		var lastGranule uint64
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) {
				if _, err := file.Seek(0, io.SeekStart); err != nil {
					return err
				}
				if reader, _, err = oggreader.NewWith(file); err != nil {
					return err
				}
				lastGranule = 0
				continue
			}
			if err != nil {
				return err
			}

			// Granule positions count 48kHz samples.
			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond

			if err := track.WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
				return err
			}
		}
	})
	return track, nil
}
