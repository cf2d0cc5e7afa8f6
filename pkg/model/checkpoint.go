package model

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"quantumlm/pkg/tensor"
)

// Checkpoint layout, little-endian throughout:
//
//	magic    [4]byte  "QLMC"
//	version  uint32
//	cfgLen   uint32
//	cfg      [cfgLen]byte   JSON-encoded Config
//	count    uint32         number of tensor records
//	records  count times:
//	  nameLen uint32
//	  name    [nameLen]byte
//	  ndims   uint32
//	  dims    [ndims]uint32
//	  data    prod(dims) float32
//
// The output head is never stored; it is re-tied to the embedding on load.

const checkpointVersion = 1

var checkpointMagic = [4]byte{'Q', 'L', 'M', 'C'}

var (
	ErrBadCheckpoint     = errors.New("malformed checkpoint")
	ErrCheckpointVersion = errors.New("unsupported checkpoint version")
)

// Save writes the model parameters to path. The file is written whole; a
// partial write leaves an unloadable file rather than a corrupt model.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.write(w); err != nil {
		f.Close()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return f.Close()
}

// Load reads a checkpoint written by Save, validating every tensor name and
// shape against the stored configuration before constructing the model.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	defer f.Close()

	m, err := read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	return m, nil
}

func (m *Model) write(w io.Writer) error {
	if _, err := w.Write(checkpointMagic[:]); err != nil {
		return err
	}
	if err := writeU32(w, checkpointVersion); err != nil {
		return err
	}

	cfgJSON, err := json.Marshal(m.Config)
	if err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(cfgJSON))); err != nil {
		return err
	}
	if _, err := w.Write(cfgJSON); err != nil {
		return err
	}

	records := m.tensorRecords()
	if err := writeU32(w, uint32(len(records))); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writeTensor(w, rec.name, rec.t); err != nil {
			return err
		}
	}
	return nil
}

func read(r io.Reader) (*Model, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if magic != checkpointMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadCheckpoint, magic[:])
	}
	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCheckpointVersion, version, checkpointVersion)
	}

	cfgLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	cfgJSON := make([]byte, cfgLen)
	if _, err := io.ReadFull(r, cfgJSON); err != nil {
		return nil, fmt.Errorf("%w: config: %v", ErrBadCheckpoint, err)
	}
	var cfg Config
	if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
		return nil, fmt.Errorf("%w: config: %v", ErrBadCheckpoint, err)
	}

	m, err := New(cfg)
	if err != nil {
		return nil, err
	}

	want := make(map[string]*tensor.Tensor, len(m.tensorRecords()))
	for _, rec := range m.tensorRecords() {
		want[rec.name] = rec.t
	}

	count, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	if int(count) != len(want) {
		return nil, fmt.Errorf("%w: %d tensors, want %d", ErrBadCheckpoint, count, len(want))
	}

	seen := make(map[string]bool, count)
	for i := 0; i < int(count); i++ {
		name, shape, data, err := readTensor(r)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadCheckpoint, i, err)
		}
		dst, ok := want[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown tensor %q", ErrBadCheckpoint, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate tensor %q", ErrBadCheckpoint, name)
		}
		seen[name] = true
		if !shapeEq(shape, dst.Shape) {
			return nil, fmt.Errorf("%w: tensor %q has shape %v, want %v",
				ErrBadCheckpoint, name, shape, dst.Shape)
		}
		copy(dst.Data, data)
	}
	for name := range want {
		if !seen[name] {
			return nil, fmt.Errorf("%w: missing tensor %q", ErrBadCheckpoint, name)
		}
	}

	if err := m.checkTied(); err != nil {
		return nil, err
	}
	return m, nil
}

type namedTensor struct {
	name string
	t    *tensor.Tensor
}

// tensorRecords returns every stored parameter in a fixed order. The tied
// output head is deliberately absent.
func (m *Model) tensorRecords() []namedTensor {
	recs := []namedTensor{{"tok_emb.weight", m.TokEmb}}
	for i, b := range m.Blocks {
		p := fmt.Sprintf("blocks.%d.", i)
		recs = append(recs,
			namedTensor{p + "attn_norm.weight", b.AttnNorm.Weight},
			namedTensor{p + "attn.q_proj.weight", b.Attn.WQ},
			namedTensor{p + "attn.k_proj.weight", b.Attn.WK},
			namedTensor{p + "attn.v_proj.weight", b.Attn.WV},
			namedTensor{p + "attn.o_proj.weight", b.Attn.WO},
			namedTensor{p + "ffn_norm.weight", b.FFNorm.Weight},
			namedTensor{p + "ffn.gate_proj.weight", b.FF.WGate},
			namedTensor{p + "ffn.up_proj.weight", b.FF.WUp},
			namedTensor{p + "ffn.down_proj.weight", b.FF.WDown},
		)
	}
	recs = append(recs, namedTensor{"norm.weight", m.FinalNorm.Weight})
	return recs
}

func writeTensor(w io.Writer, name string, t *tensor.Tensor) error {
	if err := writeU32(w, uint32(len(name))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, name); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, d := range t.Shape {
		if err := writeU32(w, uint32(d)); err != nil {
			return err
		}
	}
	buf := make([]byte, 4)
	for _, v := range t.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func readTensor(r io.Reader) (string, []int, []float32, error) {
	nameLen, err := readU32(r)
	if err != nil {
		return "", nil, nil, err
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return "", nil, nil, err
	}

	ndims, err := readU32(r)
	if err != nil {
		return "", nil, nil, err
	}
	shape := make([]int, ndims)
	size := 1
	for i := range shape {
		d, err := readU32(r)
		if err != nil {
			return "", nil, nil, err
		}
		shape[i] = int(d)
		size *= int(d)
	}

	raw := make([]byte, 4*size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", nil, nil, err
	}
	data := make([]float32, size)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return string(nameBuf), shape, data, nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func shapeEq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
