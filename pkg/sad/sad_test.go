package sad

import (
	"bytes"
	"testing"

	"github.com/cortexmesh/corenet/pkg/frame"
)

func sampleSAD() SAD {
	return SAD{
		Flags: 0,
		Fields: []Field{
			Uint32Field(FieldModelArch, 7),
			Uint32Field(FieldCapability, CapTextGen|CapReasoning),
			Uint32Field(FieldContextWindow, 128000),
			Uint8Field(FieldMinTrustLevel, 2),
			Uint16ListField(FieldRegionExclude, []uint16{1, 4}),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := sampleSAD()
	buf, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(buf); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Flags != s.Flags || len(got.Fields) != len(s.Fields) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, s)
	}
	for i := range s.Fields {
		if got.Fields[i].Type != s.Fields[i].Type || !bytes.Equal(got.Fields[i].Value, s.Fields[i].Value) {
			t.Fatalf("field %d mismatch: got %+v, want %+v", i, got.Fields[i], s.Fields[i])
		}
	}
}

func TestWildcardSAD(t *testing.T) {
	s := SAD{}
	buf, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(buf); err != nil {
		t.Fatal(err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsWildcard() {
		t.Fatal("expected wildcard SAD")
	}
}

func TestEncodeRejectsTooManyFields(t *testing.T) {
	fields := make([]Field, MaxFields+1)
	for i := range fields {
		fields[i] = Uint8Field(FieldCustom, byte(i))
	}
	if _, err := Encode(SAD{Fields: fields}); err == nil {
		t.Fatal("expected error for too many fields")
	}
}

func TestEncodeRejectsOversize(t *testing.T) {
	big := Field{Type: FieldCustom, Value: make([]byte, MaxTotalBytes)}
	if _, err := Encode(SAD{Fields: []Field{big}}); err == nil {
		t.Fatal("expected error for oversized SAD")
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	buf := []byte{99, 0, 0, 0}
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected bad version error")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	s := sampleSAD()
	buf, _ := Encode(s)
	if _, err := Decode(buf[:len(buf)-3]); err == nil {
		t.Fatal("expected truncated error")
	}
}

func TestValidateRejectsBadFixedLength(t *testing.T) {
	s := SAD{Fields: []Field{{Type: FieldModelArch, Value: []byte{1, 2}}}}
	buf, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(buf); err == nil {
		t.Fatal("expected bad field length error")
	}
}

func TestValidateRejectsEmptyRegionList(t *testing.T) {
	s := SAD{Fields: []Field{{Type: FieldRegionExclude, Value: []byte{}}}}
	buf, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(buf); err == nil {
		t.Fatal("expected error for empty region list")
	}
}

func TestUnknownNonCriticalFieldPreserved(t *testing.T) {
	s := SAD{Fields: []Field{{Type: FieldType(200), Value: []byte{9, 9}}}}
	buf, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(buf); err != nil {
		t.Fatalf("unknown field type should be tolerated, got %v", err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Fields) != 1 || got.Fields[0].Type != FieldType(200) {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestPublisherIDRoundTrip(t *testing.T) {
	var id frame.NodeID
	for i := range id {
		id[i] = byte(i)
	}
	s := SAD{Fields: []Field{{Type: FieldPublisherID, Value: id[:]}}}
	buf, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	gotID, ok := got.GetPublisherID()
	if !ok || gotID != id {
		t.Fatalf("publisher id mismatch: got %v, ok=%v", gotID, ok)
	}
}

func FuzzDecode(f *testing.F) {
	s := sampleSAD()
	buf, _ := Encode(s)
	f.Add(buf)
	f.Add([]byte{})
	f.Add([]byte{1, 0, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Decode(data)
	})
}
