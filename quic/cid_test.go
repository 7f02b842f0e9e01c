package quic

import "testing"

func TestConnectionIDEqual(t *testing.T) {
	a, _ := NewConnectionID([]byte{1, 2, 3, 4})
	b, _ := NewConnectionID([]byte{1, 2, 3, 4})
	c, _ := NewConnectionID([]byte{1, 2, 3, 5})
	d, _ := NewConnectionID([]byte{1, 2, 3})

	if !a.Equal(b) {
		t.Error("identical byte contents should be equal")
	}
	if a.Equal(c) {
		t.Error("differing byte contents should not be equal")
	}
	if a.Equal(d) {
		t.Error("differing lengths should not be equal")
	}
}

func TestConnectionIDNull(t *testing.T) {
	var zero ConnectionID
	if !zero.IsNull() {
		t.Error("zero-value ConnectionID should be null")
	}

	nonZero, _ := NewConnectionID([]byte{0})
	if nonZero.IsNull() {
		t.Error("1-byte ConnectionID should not be null even if the byte is 0x00")
	}
}

func TestNewConnectionIDTooLong(t *testing.T) {
	_, err := NewConnectionID(make([]byte, MaxCIDLen+1))
	if err != errCIDTooLong {
		t.Errorf("error = %v, want errCIDTooLong", err)
	}
}

func TestParseAppendConnectionIDRoundTrip(t *testing.T) {
	want, _ := NewConnectionID([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88})

	buf := appendConnectionID(nil, want)

	length := int(buf[0])
	got, n := parseConnectionID(buf[1:], length)
	if n != want.Len() {
		t.Fatalf("parseConnectionID consumed = %d, want %d", n, want.Len())
	}
	if !got.Equal(want) {
		t.Errorf("round trip = %v, want %v", got.Bytes(), want.Bytes())
	}
}

func TestParseConnectionIDTruncated(t *testing.T) {
	_, n := parseConnectionID([]byte{1, 2}, 4)
	if n != 0 {
		t.Errorf("parseConnectionID on short input consumed = %d, want 0", n)
	}
}
