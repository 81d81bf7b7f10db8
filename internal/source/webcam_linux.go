//go:build linux

package source

import (
	"context"
	"image"
	"log/slog"
	"sync"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// V4L2 fourcc for Motion-JPEG.
const pixelFormatMJPEG webcam.PixelFormat = 0x47504A4D

// frameWaitSeconds is how long a single wait for a frame blocks before ctx is checked again.
const frameWaitSeconds = 1

// WebcamSource reads MJPEG frames from a local V4L2 camera.
type WebcamSource struct {
	device string
	logger *slog.Logger

	mu  sync.Mutex
	cam *webcam.Webcam
}

// NewWebcamSource opens device (for example /dev/video0) and starts streaming.
func NewWebcamSource(device string, logger *slog.Logger) (*WebcamSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cam, err := webcam.Open(device)
	if err != nil {
		return nil, errors.Wrap(err, "can not open device "+device)
	}

	if err := selectMJPEG(cam); err != nil {
		cam.Close()
		return nil, err
	}

	// Few buffers keep the frames we read close to real time.
	if err := cam.SetBufferCount(2); err != nil {
		logger.Warn("can not set webcam buffer count", "device", device, "error", err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "can not start streaming")
	}

	logger.Info("webcam streaming", "device", device)
	return &WebcamSource{device: device, logger: logger, cam: cam}, nil
}

// selectMJPEG switches the camera to its largest MJPEG frame size.
func selectMJPEG(cam *webcam.Webcam) error {
	formats := cam.GetSupportedFormats()
	if _, ok := formats[pixelFormatMJPEG]; !ok {
		return errors.Errorf("camera does not support MJPEG (formats: %v)", formats)
	}

	var width, height uint32
	for _, size := range cam.GetSupportedFrameSizes(pixelFormatMJPEG) {
		if size.MaxWidth*size.MaxHeight > width*height {
			width, height = size.MaxWidth, size.MaxHeight
		}
	}
	if width == 0 {
		return errors.New("camera reports no MJPEG frame sizes")
	}

	if _, _, _, err := cam.SetImageFormat(pixelFormatMJPEG, width, height); err != nil {
		return errors.Wrap(err, "can not set image format")
	}
	return nil
}

// Next waits for the next frame and decodes it.
func (s *WebcamSource) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam == nil {
		return nil, errors.New("webcam is closed")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.cam.WaitForFrame(frameWaitSeconds)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, errors.Wrap(err, "frame wait failed")
		}

		frame, err := s.cam.ReadFrame()
		if err != nil {
			return nil, errors.Wrap(err, "read frame failed")
		}
		if len(frame) == 0 {
			continue
		}

		// The driver reuses the buffer once the next frame is read.
		data := make([]byte, len(frame))
		copy(data, frame)

		img, err := Decode(data)
		if err != nil {
			return nil, errors.Wrap(err, "can not decode frame")
		}
		return img, nil
	}
}

// Close stops streaming and releases the device.
func (s *WebcamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cam == nil {
		return nil
	}
	if err := s.cam.StopStreaming(); err != nil {
		s.logger.Warn("can not stop webcam streaming", "device", s.device, "error", err)
	}
	err := s.cam.Close()
	s.cam = nil
	return errors.Wrap(err, "can not close device")
}
