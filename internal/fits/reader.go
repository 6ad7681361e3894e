package fits

import (
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var ErrNotFITS = errors.New("not a FITS file")

// ReadFile reads all headers of the file at path, choosing the decoder from
// the file name suffix.
func ReadFile(path string) ([]Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".header"):
		return ReadText(f)
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer zr.Close()
		return Read(zr)
	case strings.HasSuffix(lower, ".bz2"):
		return Read(bzip2.NewReader(f))
	default:
		return Read(f)
	}
}

// Read reads the header of every HDU in a FITS stream, skipping data units.
func Read(r io.Reader) ([]Header, error) {
	br := bufio.NewReaderSize(r, blockSize)
	var headers []Header
	block := make([]byte, blockSize)
	for {
		h, err := readHeader(br, block)
		if errors.Is(err, io.EOF) && len(headers) > 0 {
			return headers, nil
		}
		if err != nil {
			return nil, err
		}
		if len(headers) == 0 {
			if v, ok := h.Get("SIMPLE"); !ok || v != "T" {
				return nil, ErrNotFITS
			}
		}
		headers = append(headers, h)

		size, err := dataSize(h)
		if err != nil {
			return nil, fmt.Errorf("hdu %d: %w", len(headers)-1, err)
		}
		if _, err := io.CopyN(io.Discard, br, padded(size)); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("hdu %d: truncated data: %w", len(headers)-1, io.ErrUnexpectedEOF)
			}
			return nil, err
		}
	}
}

func readHeader(br *bufio.Reader, block []byte) (Header, error) {
	var h Header
	for first := true; ; first = false {
		if _, err := io.ReadFull(br, block); err != nil {
			if first && errors.Is(err, io.EOF) {
				return Header{}, io.EOF
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Header{}, fmt.Errorf("truncated header: %w", io.ErrUnexpectedEOF)
			}
			return Header{}, err
		}
		for off := 0; off < blockSize; off += cardSize {
			card := parseCard(string(block[off : off+cardSize]))
			if card.Keyword == "END" {
				return h, nil
			}
			if card.Keyword == "" && card.Comment == "" {
				continue
			}
			h.Cards = append(h.Cards, card)
		}
	}
}

// ReadText reads newline separated header cards. An END card closes one
// header; trailing cards without END form the last header.
func ReadText(r io.Reader) ([]Header, error) {
	sc := bufio.NewScanner(r)
	var (
		headers []Header
		current Header
		started bool
	)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		card := parseCard(line)
		if card.Keyword == "END" {
			headers = append(headers, current)
			current, started = Header{}, false
			continue
		}
		current.Cards = append(current.Cards, card)
		started = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if started {
		headers = append(headers, current)
	}
	if len(headers) == 0 {
		return nil, ErrNotFITS
	}
	return headers, nil
}

func dataSize(h Header) (int64, error) {
	bitpix, ok := h.Int("BITPIX")
	if !ok {
		return 0, errors.New("missing BITPIX")
	}
	naxis, ok := h.Int("NAXIS")
	if !ok {
		return 0, errors.New("missing NAXIS")
	}
	if naxis == 0 {
		return 0, nil
	}
	elements := int64(1)
	for i := int64(1); i <= naxis; i++ {
		n, ok := h.Int(fmt.Sprintf("NAXIS%d", i))
		if !ok {
			return 0, fmt.Errorf("missing NAXIS%d", i)
		}
		elements *= n
	}
	pcount, _ := h.Int("PCOUNT")
	gcount, ok := h.Int("GCOUNT")
	if !ok {
		gcount = 1
	}
	if bitpix < 0 {
		bitpix = -bitpix
	}
	return bitpix / 8 * gcount * (pcount + elements), nil
}

func padded(size int64) int64 {
	if rem := size % blockSize; rem != 0 {
		return size + blockSize - rem
	}
	return size
}
