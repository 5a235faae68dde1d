package imageio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chges100/AstroNoiseNet/tensor"
)

// FITS primary HDUs only: 2880-byte header blocks of 80-character cards,
// followed by big-endian pixel data padded to a block boundary. Planes
// are stored channel-first (NAXIS3 slowest); conversion to the internal
// channel-last layout happens here at the boundary.
const (
	fitsBlockSize = 2880
	fitsCardSize  = 80
)

type fitsHeader struct {
	bitpix int
	naxis  []int
	bzero  float64
	bscale float64
}

// ReadFITS reads the primary HDU of a FITS file into a channel-last
// image. Integer pixel data is rescaled to [0,1] by its type range;
// floating-point data is passed through.
func ReadFITS(path string) (*tensor.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := readFITSHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var w, h, c int
	switch len(hdr.naxis) {
	case 2:
		w, h, c = hdr.naxis[0], hdr.naxis[1], 1
	case 3:
		w, h, c = hdr.naxis[0], hdr.naxis[1], hdr.naxis[2]
	default:
		return nil, fmt.Errorf("%s: unsupported NAXIS=%d", path, len(hdr.naxis))
	}

	plane := w * h
	raw := make([]float32, plane*c)
	if err := readFITSData(f, hdr, raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Channel-first planes to channel-last pixels.
	img := tensor.NewImage(h, w, c)
	for ch := 0; ch < c; ch++ {
		src := raw[ch*plane : (ch+1)*plane]
		for i, v := range src {
			img.Data[i*c+ch] = v
		}
	}
	return img, nil
}

// WriteFITS writes a channel-last image as a 32-bit float FITS primary
// HDU. Single-channel images are written with NAXIS=2, multi-channel
// with one plane per channel.
func WriteFITS(path string, img *tensor.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var cards []string
	cards = append(cards, fitsCard("SIMPLE", "T"))
	cards = append(cards, fitsCard("BITPIX", "-32"))
	if img.C == 1 {
		cards = append(cards, fitsCard("NAXIS", "2"))
		cards = append(cards, fitsCard("NAXIS1", strconv.Itoa(img.W)))
		cards = append(cards, fitsCard("NAXIS2", strconv.Itoa(img.H)))
	} else {
		cards = append(cards, fitsCard("NAXIS", "3"))
		cards = append(cards, fitsCard("NAXIS1", strconv.Itoa(img.W)))
		cards = append(cards, fitsCard("NAXIS2", strconv.Itoa(img.H)))
		cards = append(cards, fitsCard("NAXIS3", strconv.Itoa(img.C)))
	}
	cards = append(cards, padCard("END"))

	header := strings.Join(cards, "")
	if pad := len(header) % fitsBlockSize; pad != 0 {
		header += strings.Repeat(" ", fitsBlockSize-pad)
	}
	if _, err := io.WriteString(f, header); err != nil {
		return err
	}

	// Channel-last pixels to channel-first planes, big-endian float32.
	plane := img.H * img.W
	buf := make([]byte, plane*img.C*4)
	for ch := 0; ch < img.C; ch++ {
		for i := 0; i < plane; i++ {
			bits := math.Float32bits(img.Data[i*img.C+ch])
			binary.BigEndian.PutUint32(buf[(ch*plane+i)*4:], bits)
		}
	}
	if _, err := f.Write(buf); err != nil {
		return err
	}
	if pad := len(buf) % fitsBlockSize; pad != 0 {
		if _, err := f.Write(make([]byte, fitsBlockSize-pad)); err != nil {
			return err
		}
	}
	return nil
}

func fitsCard(key, value string) string {
	return padCard(fmt.Sprintf("%-8s= %20s", key, value))
}

func padCard(s string) string {
	if len(s) < fitsCardSize {
		s += strings.Repeat(" ", fitsCardSize-len(s))
	}
	return s[:fitsCardSize]
}

func readFITSHeader(r io.Reader) (*fitsHeader, error) {
	hdr := &fitsHeader{bscale: 1}
	naxes := map[int]int{}
	naxis := -1
	block := make([]byte, fitsBlockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("reading header block: %w", err)
		}
		done := false
		for i := 0; i < fitsBlockSize; i += fitsCardSize {
			card := string(block[i : i+fitsCardSize])
			key := strings.TrimSpace(card[:8])
			if key == "END" {
				done = true
				break
			}
			if len(card) < 10 || card[8:10] != "= " {
				continue
			}
			value := card[10:]
			if idx := strings.IndexByte(value, '/'); idx >= 0 {
				value = value[:idx]
			}
			value = strings.TrimSpace(value)
			switch {
			case key == "BITPIX":
				v, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("bad BITPIX %q", value)
				}
				hdr.bitpix = v
			case key == "NAXIS":
				v, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("bad NAXIS %q", value)
				}
				naxis = v
			case strings.HasPrefix(key, "NAXIS"):
				n, err := strconv.Atoi(key[5:])
				if err != nil {
					continue
				}
				v, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("bad %s %q", key, value)
				}
				naxes[n] = v
			case key == "BZERO":
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("bad BZERO %q", value)
				}
				hdr.bzero = v
			case key == "BSCALE":
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("bad BSCALE %q", value)
				}
				hdr.bscale = v
			}
		}
		if done {
			break
		}
	}
	if naxis < 0 {
		return nil, fmt.Errorf("missing NAXIS")
	}
	for i := 1; i <= naxis; i++ {
		v, ok := naxes[i]
		if !ok {
			return nil, fmt.Errorf("missing NAXIS%d", i)
		}
		hdr.naxis = append(hdr.naxis, v)
	}
	return hdr, nil
}

func readFITSData(r io.Reader, hdr *fitsHeader, out []float32) error {
	bytesPer := abs(hdr.bitpix) / 8
	buf := make([]byte, len(out)*bytesPer)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("reading pixel data: %w", err)
	}
	switch hdr.bitpix {
	case -32:
		for i := range out {
			bits := binary.BigEndian.Uint32(buf[i*4:])
			out[i] = float32(hdr.bzero + hdr.bscale*float64(math.Float32frombits(bits)))
		}
	case -64:
		for i := range out {
			bits := binary.BigEndian.Uint64(buf[i*8:])
			out[i] = float32(hdr.bzero + hdr.bscale*math.Float64frombits(bits))
		}
	case 8:
		for i := range out {
			out[i] = float32((hdr.bzero + hdr.bscale*float64(buf[i])) / 255)
		}
	case 16:
		for i := range out {
			v := int16(binary.BigEndian.Uint16(buf[i*2:]))
			out[i] = float32((hdr.bzero + hdr.bscale*float64(v)) / 65535)
		}
	case 32:
		for i := range out {
			v := int32(binary.BigEndian.Uint32(buf[i*4:]))
			out[i] = float32((hdr.bzero + hdr.bscale*float64(v)) / 4294967295)
		}
	default:
		return fmt.Errorf("unsupported BITPIX %d", hdr.bitpix)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
