package tensor

import (
	"encoding/binary"
	"io"

	verr "github.com/veloxrt/velox/errors"
)

// Serialize writes the tensor as a self-describing stream per spec
// §4.A: u32 rank, rank x i64 dims, u32 dtype tag, u64 byte len, payload.
// Dynamic dims are rejected — only materialized, static-shape tensors
// can round-trip through this format.
func (t *Tensor) Serialize(w io.Writer) error {
	if !t.shape.IsStatic() {
		return verr.New(verr.InvalidArgument, "serialize: tensor has dynamic dims %s", t.shape)
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(t.shape.Rank()))
	if _, err := w.Write(hdr[:]); err != nil {
		return verr.Wrap(verr.RuntimeError, err, "serialize: write rank")
	}

	for _, d := range t.shape {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(d.Size))
		if _, err := w.Write(buf[:]); err != nil {
			return verr.Wrap(verr.RuntimeError, err, "serialize: write dim")
		}
	}

	var dtypeBuf [4]byte
	binary.LittleEndian.PutUint32(dtypeBuf[:], uint32(t.dtype))
	if _, err := w.Write(dtypeBuf[:]); err != nil {
		return verr.Wrap(verr.RuntimeError, err, "serialize: write dtype")
	}

	data := t.Data()
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return verr.Wrap(verr.RuntimeError, err, "serialize: write byte_len")
	}

	if _, err := w.Write(data); err != nil {
		return verr.Wrap(verr.RuntimeError, err, "serialize: write payload")
	}
	return nil
}

// Deserialize reads a tensor previously written by Serialize, creating
// an owning Tensor on device. It validates the declared byte length
// against rank/dims/dtype before trusting the payload.
func Deserialize(r io.Reader, device Device) (*Tensor, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, verr.Wrap(verr.InvalidModel, err, "deserialize: read rank")
	}
	rank := binary.LittleEndian.Uint32(hdr[:])

	shape := make(Shape, rank)
	for i := range shape {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, verr.Wrap(verr.InvalidModel, err, "deserialize: read dim %d", i)
		}
		shape[i] = Static(int64(binary.LittleEndian.Uint64(buf[:])))
	}

	var dtypeBuf [4]byte
	if _, err := io.ReadFull(r, dtypeBuf[:]); err != nil {
		return nil, verr.Wrap(verr.InvalidModel, err, "deserialize: read dtype")
	}
	dtype := DataType(binary.LittleEndian.Uint32(dtypeBuf[:]))

	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, verr.Wrap(verr.InvalidModel, err, "deserialize: read byte_len")
	}
	byteLen := binary.LittleEndian.Uint64(lenBuf[:])

	expected := uint64(shape.NumElements()) * uint64(dtype.Size())
	if byteLen != expected {
		return nil, verr.New(verr.InvalidModel,
			"deserialize: byte_len %d does not match shape %s/dtype %s (expected %d)", byteLen, shape, dtype, expected)
	}

	out, err := Create(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, out.Data()); err != nil {
		out.Release()
		return nil, verr.Wrap(verr.InvalidModel, err, "deserialize: read payload")
	}
	return out, nil
}
