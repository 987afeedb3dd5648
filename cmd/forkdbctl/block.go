package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/mezonai/forkdb/blockstate"
)

// demoHeader is a minimal blockstate.BlockHeaderState used only to exercise
// the fork database from the command line; real hosts supply their own
// block/header type.
type demoHeader struct {
	id                   blockstate.ID
	previous             blockstate.ID
	blockNum             uint32
	timestamp            int64
	irreversibleBlockNum uint32
}

func (h demoHeader) ID() blockstate.ID               { return h.id }
func (h demoHeader) Previous() blockstate.ID         { return h.previous }
func (h demoHeader) BlockNum() uint32                { return h.blockNum }
func (h demoHeader) Timestamp() time.Time            { return time.Unix(h.timestamp, 0) }
func (h demoHeader) IrreversibleBlockNum() uint32    { return h.irreversibleBlockNum }
func (h demoHeader) ActivatedFeatures() []blockstate.FeatureDigest { return nil }
func (h demoHeader) FeatureActivation() (blockstate.FeatureActivation, bool) {
	return blockstate.FeatureActivation{}, false
}

func (h demoHeader) String() string {
	return fmt.Sprintf("block %s (num=%d, prev=%s)", h.id, h.blockNum, h.previous)
}

// demoCodec is the forkdb.Codec[demoHeader] implementation backing
// forkdbctl's snapshot file. Every field is written fixed-width; no variable
// payload exists for this demo type.
type demoCodec struct{}

func (demoCodec) EncodeHeader(w io.Writer, b demoHeader) error {
	return encodeDemoHeader(w, b)
}

func (demoCodec) DecodeHeader(r io.Reader) (demoHeader, error) {
	return decodeDemoHeader(r)
}

func (demoCodec) EncodeState(w io.Writer, s *blockstate.BlockState[demoHeader]) error {
	if err := encodeDemoHeader(w, s.Block()); err != nil {
		return err
	}
	var validByte byte
	if s.IsValid() {
		validByte = 1
	}
	_, err := w.Write([]byte{validByte})
	return err
}

func (demoCodec) DecodeState(r io.Reader) (*blockstate.BlockState[demoHeader], error) {
	h, err := decodeDemoHeader(r)
	if err != nil {
		return nil, err
	}
	var validByte [1]byte
	if _, err := io.ReadFull(r, validByte[:]); err != nil {
		return nil, err
	}
	if validByte[0] != 0 {
		return blockstate.NewValid(h), nil
	}
	return blockstate.New(h), nil
}

func encodeDemoHeader(w io.Writer, b demoHeader) error {
	var buf bytes.Buffer
	buf.Write(b.id[:])
	buf.Write(b.previous[:])
	binary.Write(&buf, binary.LittleEndian, b.blockNum)
	binary.Write(&buf, binary.LittleEndian, b.timestamp)
	binary.Write(&buf, binary.LittleEndian, b.irreversibleBlockNum)
	_, err := w.Write(buf.Bytes())
	return err
}

func decodeDemoHeader(r io.Reader) (demoHeader, error) {
	var h demoHeader
	if _, err := io.ReadFull(r, h.id[:]); err != nil {
		return h, err
	}
	if _, err := io.ReadFull(r, h.previous[:]); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.blockNum); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.timestamp); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.irreversibleBlockNum); err != nil {
		return h, err
	}
	return h, nil
}

func idFromString(s string) blockstate.ID {
	var id blockstate.ID
	copy(id[:], s)
	return id
}
