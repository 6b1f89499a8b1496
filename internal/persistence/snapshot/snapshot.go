package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
}

type EntitySnapshot struct {
	ID         uint32                     `json:"id"`
	Components map[string]json.RawMessage `json:"components"`
}

type GameSnapshot struct {
	Header Header `json:"header"`
	// Timestamp is unix milliseconds at capture.
	Timestamp int64 `json:"timestamp"`
	// EngineBlob is opaque to everything but the engine.
	EngineBlob []byte           `json:"engine_blob"`
	Entities   []EntitySnapshot `json:"entities"`
}

// WriteSnapshot stores snap as a zstd stream: one JSON header line, then gob.
func WriteSnapshot(path string, snap GameSnapshot) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err := Encode(f, snap); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Encode(w io.Writer, snap GameSnapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (GameSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return GameSnapshot{}, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (GameSnapshot, error) {
	var snap GameSnapshot
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	hdr, err := readHeader(br)
	if err != nil {
		return snap, err
	}
	if hdr.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", hdr.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header != hdr {
		return snap, errors.New("snapshot header does not match body")
	}
	return snap, nil
}

// ReadHeader reads only the header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
