package device

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
)

// CaptureError describes a failed frame capture: the display process or
// framebuffer mapping could not be found, or the reported geometry does
// not match the selected hardware profile (typically after a firmware
// upgrade changed the panel layout).
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("capture: %s", e.Reason)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Capture reads frames out of the display compositor's memory. The
// compositor owns the panel, so we read its mapping of the framebuffer
// rather than opening the device node ourselves.
type Capture struct {
	profile Profile
}

// NewCapture creates a frame capturer for the given hardware profile.
func NewCapture(p Profile) *Capture {
	return &Capture{profile: p}
}

// Capture grabs one frame and returns it normalized to 768x1024
// grayscale. The returned bitmap owns its pixels; nothing is cached.
func (c *Capture) Capture() (*Bitmap, error) {
	raw, err := c.readFrame()
	if err != nil {
		return nil, err
	}
	if len(raw) != c.profile.FrameSize() {
		return nil, &CaptureError{Reason: fmt.Sprintf(
			"framebuffer is %d bytes, want %d for %s (firmware changed the panel layout?)",
			len(raw), c.profile.FrameSize(), c.profile)}
	}

	var native *image.Gray
	switch c.profile {
	case PaperPro:
		native = decodePaperPro(raw, c.profile.ScreenWidth(), c.profile.ScreenHeight())
	default:
		native = decodeGen2(raw, c.profile.ScreenWidth(), c.profile.ScreenHeight())
	}

	return normalize(native), nil
}

// Probe checks that a frame source is reachable without reading a whole
// frame, so startup can fail fast with a distinct exit code.
func (c *Capture) Probe() error {
	pid, err := compositorPID()
	if err != nil {
		return &CaptureError{Reason: "display compositor not running", Err: err}
	}
	if _, err := c.framePointer(pid); err != nil {
		return err
	}
	return nil
}

// readFrame locates the live frame in the compositor's address space
// and reads one full frame of raw pixels.
func (c *Capture) readFrame() ([]byte, error) {
	pid, err := compositorPID()
	if err != nil {
		return nil, &CaptureError{Reason: "display compositor not running", Err: err}
	}

	ptr, err := c.framePointer(pid)
	if err != nil {
		return nil, err
	}

	mem, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, &CaptureError{Reason: "opening compositor memory", Err: err}
	}
	defer mem.Close()

	buf := make([]byte, c.profile.FrameSize())
	if _, err := mem.ReadAt(buf, ptr); err != nil {
		return nil, &CaptureError{Reason: "reading framebuffer", Err: err}
	}
	return buf, nil
}

// framePointer finds the byte offset of the frame in /proc/<pid>/mem.
// The two generations expose it differently: Gen2 maps /dev/fb0
// directly, Paper Pro keeps it behind a DRM allocation that has to be
// walked by its chunk headers.
func (c *Capture) framePointer(pid int) (int64, error) {
	switch c.profile {
	case PaperPro:
		start, err := mappingEnd(pid, "/dev/dri/card0")
		if err != nil {
			return 0, &CaptureError{Reason: "no /dev/dri/card0 mapping", Err: err}
		}
		return paperProFramePointer(pid, start, int64(c.profile.FrameSize()))
	default:
		start, size, err := mappingStart(pid, "/dev/fb0")
		if err != nil {
			return 0, &CaptureError{Reason: "no /dev/fb0 mapping", Err: err}
		}
		if size < int64(c.profile.FrameSize()) {
			return 0, &CaptureError{Reason: fmt.Sprintf(
				"fb0 mapping is %d bytes, want at least %d for %s",
				size, c.profile.FrameSize(), c.profile)}
		}
		// The pixel data starts a few bytes into the mapping.
		return start + 7, nil
	}
}

// compositorPID finds the pid of xochitl, the stock display compositor.
func compositorPID() (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}
	for _, ent := range entries {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", ent.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) == "xochitl" {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("no xochitl process found")
}

// mappingStart returns the start address and size of the last mapping
// of the named file in /proc/<pid>/maps.
func mappingStart(pid int, name string) (start, size int64, err error) {
	lines, err := mapsLines(pid, name)
	if err != nil {
		return 0, 0, err
	}
	rng := strings.Fields(lines[len(lines)-1])[0]
	lo, hi, err := parseRange(rng)
	if err != nil {
		return 0, 0, err
	}
	return lo, hi - lo, nil
}

// mappingEnd returns the end address of the last mapping of the named
// file in /proc/<pid>/maps.
func mappingEnd(pid int, name string) (int64, error) {
	lines, err := mapsLines(pid, name)
	if err != nil {
		return 0, err
	}
	rng := strings.Fields(lines[len(lines)-1])[0]
	_, hi, err := parseRange(rng)
	return hi, err
}

func mapsLines(pid int, name string) ([]string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	var match []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, name) {
			match = append(match, line)
		}
	}
	if len(match) == 0 {
		return nil, fmt.Errorf("no mapping of %s in pid %d", name, pid)
	}
	return match, nil
}

func parseRange(rng string) (lo, hi int64, err error) {
	parts := strings.SplitN(rng, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed maps range %q", rng)
	}
	lo, err = strconv.ParseInt(parts[0], 16, 64)
	if err != nil {
		return 0, 0, err
	}
	hi, err = strconv.ParseInt(parts[1], 16, 64)
	return lo, hi, err
}

// paperProFramePointer walks the DRM allocation's chunk headers until it
// finds one large enough to hold a full frame. Each chunk carries its
// length as a little-endian u32 eight bytes in.
func paperProFramePointer(pid int, start, frameSize int64) (int64, error) {
	mem, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return 0, &CaptureError{Reason: "opening compositor memory", Err: err}
	}
	defer mem.Close()

	var offset int64
	length := int64(2)
	header := make([]byte, 8)
	for length < frameSize {
		offset += length - 2
		if _, err := mem.ReadAt(header, start+offset+8); err != nil {
			return 0, &CaptureError{Reason: "walking DRM chunks", Err: err}
		}
		length = int64(header[0]) | int64(header[1])<<8 | int64(header[2])<<16 | int64(header[3])<<24
		if length <= 2 {
			return 0, &CaptureError{Reason: "DRM chunk walk hit a zero-length chunk"}
		}
	}
	return start + offset, nil
}

// decodeGen2 decodes the Gen2 16-bit grayscale framebuffer. The raw
// buffer holds 1404-pixel rows with the useful value in the high byte
// of each pixel, and the rows run bottom-up relative to the portrait
// screen, the same mounting quirk that inverts the pen's Y axis.
// Flipping the row order yields the upright portrait frame.
func decodeGen2(raw []byte, lw, lh int) *image.Gray {
	pw, ph := lh, lw // portrait dimensions
	img := image.NewGray(image.Rect(0, 0, pw, ph))
	for y := 0; y < ph; y++ {
		row := (ph - 1 - y) * pw
		for x := 0; x < pw; x++ {
			img.Pix[y*img.Stride+x] = applyCurves(raw[(row+x)*2+1])
		}
	}
	return img
}

// decodePaperPro decodes the Paper Pro's 32-bit RGBA framebuffer to
// grayscale, averaging the color channels.
func decodePaperPro(raw []byte, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			gray := (uint16(raw[i]) + uint16(raw[i+1]) + uint16(raw[i+2])) / 3
			img.Pix[y*img.Stride+x] = applyCurves(byte(gray))
		}
	}
	return img
}

// applyCurves stretches the e-ink panel's narrow dark band to full
// contrast. Values below the band floor clamp to black, above the
// ceiling to white. Thresholds were tuned against real panels.
func applyCurves(v byte) byte {
	const (
		floor   = 0.045
		ceiling = 0.06
	)
	n := float64(v) / 255.0
	switch {
	case n < floor:
		return 0
	case n < ceiling:
		return byte((n - floor) / (ceiling - floor) * 255.0)
	default:
		return 255
	}
}

// normalize scales a native-resolution frame to the fixed normalized
// resolution with Lanczos resampling, which is deterministic for a
// given input.
func normalize(img *image.Gray) *Bitmap {
	scaled := resize.Resize(NormalWidth, NormalHeight, img, resize.Lanczos3)
	if g, ok := scaled.(*image.Gray); ok {
		return NewGrayBitmap(g)
	}
	out := image.NewGray(image.Rect(0, 0, NormalWidth, NormalHeight))
	draw.Draw(out, out.Bounds(), scaled, image.Point{}, draw.Src)
	return NewGrayBitmap(out)
}
