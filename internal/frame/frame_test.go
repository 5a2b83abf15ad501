package frame

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

// bufPort — io.ReadWriteCloser поверх буфера для тестов
type bufPort struct {
	bytes.Buffer
}

func (*bufPort) Close() error { return nil }

func TestEncodeVerify(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	pkt := Encode(ClassTag, IDWords, payload)
	if len(pkt) != HeaderSize+len(payload)+2 {
		t.Fatalf("длина кадра %d", len(pkt))
	}

	t.Run("valid", func(t *testing.T) {
		h, got, err := Verify(pkt)
		if err != nil {
			t.Fatal(err)
		}
		if h.Class != ClassTag || h.ID != IDWords || h.Length != 4 {
			t.Errorf("header %+v", h)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("payload %v", got)
		}
	})

	t.Run("corrupted", func(t *testing.T) {
		bad := append([]byte(nil), pkt...)
		bad[HeaderSize] ^= 0xff
		if _, _, err := Verify(bad); !errors.Is(err, ErrChecksum) {
			t.Errorf("ожидали ErrChecksum, получили %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if _, _, err := Verify(pkt[:len(pkt)-1]); !errors.Is(err, ErrChecksum) {
			t.Errorf("ожидали ErrChecksum, получили %v", err)
		}
	})

	t.Run("bad sync", func(t *testing.T) {
		if _, ok := ParseHeader([]byte{0xb5, 0x62, 0, 0, 0, 0}); ok {
			t.Error("чужой sync не должен разбираться")
		}
	})
}

func TestTagWords(t *testing.T) {
	words := []uint32{0x00000005, 0x01000003, 0x80ffffff}
	_, payload, err := Verify(TagWords(words))
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseTagWords(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, words) {
		t.Errorf("got %x want %x", got, words)
	}
	if _, err := ParseTagWords([]byte{1, 2, 3}); err == nil {
		t.Error("ожидали ошибку для длины не кратной 4")
	}
}

func TestPort_ReadFrame(t *testing.T) {
	rw := &bufPort{}
	// Мусор перед кадром, затем два кадра подряд
	rw.Write([]byte{0x00, 0x57, 0x13, 0x52})
	rw.Write(TagWords([]uint32{42}))
	rw.Write(TaggerCommand(3, true))
	p := NewPort(rw, "test")

	h, payload, err := p.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if h.Class != ClassTag {
		t.Errorf("class %x", h.Class)
	}
	words, _ := ParseTagWords(payload)
	if len(words) != 1 || words[0] != 42 {
		t.Errorf("words %v", words)
	}

	h, payload, err = p.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if h.Class != ClassCtl || h.ID != IDTagger || !bytes.Equal(payload, []byte{3, 1}) {
		t.Errorf("tagger command: %+v %v", h, payload)
	}

	if _, _, err := p.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("пустой поток: ожидали EOF, получили %v", err)
	}
}

func TestPort_TooLong(t *testing.T) {
	rw := &bufPort{}
	rw.Write([]byte{Sync1, Sync2, ClassTag, IDWords, 0xff, 0xff})
	p := NewPort(rw, "test")
	if _, _, err := p.ReadFrame(); !errors.Is(err, ErrTooLong) {
		t.Errorf("ожидали ErrTooLong, получили %v", err)
	}
}

func TestPort_Commands(t *testing.T) {
	rw := &bufPort{}
	p := NewPort(rw, "test")
	p.EnableTagger(2, false)
	p.SetDAC(0, -7)

	h, payload, err := p.ReadFrame()
	if err != nil || h.ID != IDTagger || !bytes.Equal(payload, []byte{2, 0}) {
		t.Errorf("tagger: %+v %v %v", h, payload, err)
	}
	h, payload, err = p.ReadFrame()
	if err != nil || h.ID != IDDAC {
		t.Fatalf("dac: %+v %v", h, err)
	}
	if !bytes.Equal(payload, []byte{0, 0xf9, 0xff, 0xff, 0xff}) {
		t.Errorf("dac payload %x", payload)
	}
}
