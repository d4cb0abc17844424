package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/lexgo/index"
)

// marshalState encodes an index state into the snapshot payload.
// Maps are written in sorted order so identical states produce
// identical bytes.
func marshalState(st *index.State) ([]byte, error) {
	var buf bytes.Buffer

	docIDs := make([]uint32, 0, len(st.Docs))
	for id := range st.Docs {
		docIDs = append(docIDs, id)
	}
	sort.Slice(docIDs, func(i, j int) bool { return docIDs[i] < docIDs[j] })

	writeUint32(&buf, uint32(len(docIDs)))
	for _, id := range docIDs {
		doc := st.Docs[id]
		writeUint32(&buf, id)
		writeString(&buf, doc.ID)

		fields := make([]string, 0, len(doc.Fields))
		for name := range doc.Fields {
			fields = append(fields, name)
		}
		sort.Strings(fields)

		writeUint32(&buf, uint32(len(fields)))
		for _, name := range fields {
			writeString(&buf, name)
			writeString(&buf, doc.Fields[name])
		}
	}

	fields := make([]string, 0, len(st.Postings))
	for name := range st.Postings {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	writeUint32(&buf, uint32(len(fields)))
	for _, name := range fields {
		terms := st.Postings[name]
		termList := make([]string, 0, len(terms))
		for term := range terms {
			termList = append(termList, term)
		}
		sort.Strings(termList)

		writeString(&buf, name)
		writeUint32(&buf, uint32(len(termList)))
		for _, term := range termList {
			writeString(&buf, term)
			bm, err := terms[term].ToBytes()
			if err != nil {
				return nil, fmt.Errorf("persist: marshal postings %s/%s: %w", name, term, err)
			}
			writeBytes(&buf, bm)
		}
	}

	return buf.Bytes(), nil
}

func unmarshalState(data []byte) (*index.State, error) {
	r := &payloadReader{data: data}

	st := &index.State{
		Docs:     make(map[uint32]index.Document),
		Postings: make(map[string]map[string]*roaring.Bitmap),
	}

	docCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < docCount; i++ {
		id, err := r.uint32()
		if err != nil {
			return nil, err
		}
		docID, err := r.string()
		if err != nil {
			return nil, err
		}
		fieldCount, err := r.uint32()
		if err != nil {
			return nil, err
		}
		doc := index.Document{ID: docID, Fields: make(map[string]string, fieldCount)}
		for j := uint32(0); j < fieldCount; j++ {
			name, err := r.string()
			if err != nil {
				return nil, err
			}
			value, err := r.string()
			if err != nil {
				return nil, err
			}
			doc.Fields[name] = value
		}
		st.Docs[id] = doc
	}

	fieldCount, err := r.uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < fieldCount; i++ {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		termCount, err := r.uint32()
		if err != nil {
			return nil, err
		}
		terms := make(map[string]*roaring.Bitmap, termCount)
		for j := uint32(0); j < termCount; j++ {
			term, err := r.string()
			if err != nil {
				return nil, err
			}
			raw, err := r.bytes()
			if err != nil {
				return nil, err
			}
			bm := roaring.New()
			if _, err := bm.ReadFrom(bytes.NewReader(raw)); err != nil {
				return nil, fmt.Errorf("persist: unmarshal postings %s/%s: %w", name, term, err)
			}
			terms[term] = bm
		}
		st.Postings[name] = terms
	}

	return st, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

type payloadReader struct {
	data []byte
	off  int
}

func (r *payloadReader) uint32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, fmt.Errorf("persist: payload truncated at offset %d: %w", r.off, ErrChecksum)
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *payloadReader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt32 || r.off+int(n) > len(r.data) {
		return nil, fmt.Errorf("persist: payload truncated at offset %d: %w", r.off, ErrChecksum)
	}
	b := r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *payloadReader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
