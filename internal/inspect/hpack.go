package inspect

import (
	"errors"
	"fmt"

	"golang.org/x/net/http2/hpack"
)

// HeaderBlockDecoder decodes HPACK header blocks that may be split across a
// HEADERS or PUSH_PROMISE frame and any number of CONTINUATION frames.
// The dynamic table persists across blocks for the life of a connection.
type HeaderBlockDecoder struct {
	decoder      *hpack.Decoder
	fields       []hpack.HeaderField
	maxTableSize uint32
	blockLen     int
}

// NewHeaderBlockDecoder creates a decoder whose dynamic table is limited to
// maxTableSize octets (the SETTINGS_HEADER_TABLE_SIZE advertised to the peer).
func NewHeaderBlockDecoder(maxTableSize uint32) *HeaderBlockDecoder {
	d := &HeaderBlockDecoder{maxTableSize: maxTableSize}
	d.decoder = hpack.NewDecoder(maxTableSize, d.emit)
	return d
}

func (d *HeaderBlockDecoder) emit(hf hpack.HeaderField) {
	d.fields = append(d.fields, hf)
}

// DecodeFragment feeds one fragment of the current header block. The
// fragment is not retained.
func (d *HeaderBlockDecoder) DecodeFragment(fragment []byte) error {
	if d.decoder == nil {
		return errors.New("hpack: HeaderBlockDecoder not initialized")
	}
	d.blockLen += len(fragment)
	if _, err := d.decoder.Write(fragment); err != nil {
		return fmt.Errorf("hpack: decoding header block fragment: %w", err)
	}
	return nil
}

// FinishDecoding completes the current block and returns its fields. Fields
// decoded before an error are returned along with it.
func (d *HeaderBlockDecoder) FinishDecoding() ([]hpack.HeaderField, error) {
	if d.decoder == nil {
		return nil, errors.New("hpack: HeaderBlockDecoder not initialized")
	}
	err := d.decoder.Close()
	fields := d.fields
	d.fields = nil
	d.blockLen = 0
	if err != nil {
		return fields, fmt.Errorf("hpack: truncated header block: %w", err)
	}
	return fields, nil
}

// ResetDecoderState drops any partially decoded block.
func (d *HeaderBlockDecoder) ResetDecoderState() {
	_ = d.decoder.Close()
	d.fields = nil
	d.blockLen = 0
}

// BlockLen returns the number of fragment octets fed into the current block.
func (d *HeaderBlockDecoder) BlockLen() int { return d.blockLen }

// SetMaxDynamicTableSize changes the dynamic table limit.
func (d *HeaderBlockDecoder) SetMaxDynamicTableSize(v uint32) {
	d.maxTableSize = v
	d.decoder.SetMaxDynamicTableSize(v)
}

// MaxDynamicTableSize returns the current dynamic table limit.
func (d *HeaderBlockDecoder) MaxDynamicTableSize() uint32 { return d.maxTableSize }
