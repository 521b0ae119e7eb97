package registry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

var magic = [8]byte{'S', 'H', 'M', 'E', 'V', 'T', 0, 0}

// schemaVersion is bumped whenever the binary layout changes. Open()
// rejects a descriptor written by a different version with
// ErrVersionMismatch (spec §7) rather than attempting to interpret it.
const schemaVersion uint32 = 1

// encodeDescriptor serializes desc to the binary, versioned layout spec
// §4.2/§6 describes: magic, schema version, marker, creating-phase
// stamp, name, pattern, static QoS, then the attribute set.
func encodeDescriptor(desc Descriptor) []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeUint32(&buf, schemaVersion)
	buf.WriteByte(byte(desc.Marker))

	writeString(&buf, desc.CreatingOwner)
	writeInt64(&buf, desc.CreatingDeadline.UnixNano())

	writeString(&buf, string(desc.Name))
	buf.WriteByte(byte(desc.Pattern))

	writeInt32(&buf, int32(desc.Static.MaxNotifiers))
	writeInt32(&buf, int32(desc.Static.MaxListeners))
	writeInt32(&buf, int32(desc.Static.MaxNodes))
	writeUint64(&buf, desc.Static.EventIdMaxValue)

	writeOptionalDuration(&buf, desc.Static.Deadline)
	writeOptionalUint64(&buf, desc.Static.NotifierCreatedEvent)
	writeOptionalUint64(&buf, desc.Static.NotifierDroppedEvent)
	writeOptionalUint64(&buf, desc.Static.NotifierDeadEvent)

	writeUint32(&buf, uint32(len(desc.Attributes)))
	for _, a := range desc.Attributes {
		writeString(&buf, a.Key)
		writeString(&buf, a.Value)
	}

	return buf.Bytes()
}

// decodeDescriptor parses the layout encodeDescriptor produces. id and
// pattern are not themselves encoded (pattern is, but id is derived from
// the filename the caller already knows), so the caller fills desc.ID in
// separately.
func decodeDescriptor(data []byte) (Descriptor, error) {
	var desc Descriptor
	r := bytes.NewReader(data)

	var gotMagic [8]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return desc, fmt.Errorf("registry: truncated descriptor header: %w", err)
	}
	if gotMagic != magic {
		return desc, fmt.Errorf("registry: bad descriptor magic %x", gotMagic)
	}

	version, err := readUint32(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read schema version: %w", err)
	}
	if version != schemaVersion {
		return desc, errVersionMismatch{got: version}
	}

	markerByte, err := r.ReadByte()
	if err != nil {
		return desc, fmt.Errorf("registry: read marker: %w", err)
	}
	desc.Marker = Marker(markerByte)

	if desc.CreatingOwner, err = readString(r); err != nil {
		return desc, fmt.Errorf("registry: read creating owner: %w", err)
	}
	deadlineNanos, err := readInt64(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read creating deadline: %w", err)
	}
	if deadlineNanos != 0 {
		desc.CreatingDeadline = time.Unix(0, deadlineNanos)
	}

	name, err := readString(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read name: %w", err)
	}
	desc.Name = Name(name)

	patternByte, err := r.ReadByte()
	if err != nil {
		return desc, fmt.Errorf("registry: read pattern: %w", err)
	}
	desc.Pattern = MessagingPattern(patternByte)

	maxNotifiers, err := readInt32(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read max notifiers: %w", err)
	}
	maxListeners, err := readInt32(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read max listeners: %w", err)
	}
	maxNodes, err := readInt32(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read max nodes: %w", err)
	}
	eventIdMax, err := readUint64(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read event id max: %w", err)
	}
	desc.Static.MaxNotifiers = int(maxNotifiers)
	desc.Static.MaxListeners = int(maxListeners)
	desc.Static.MaxNodes = int(maxNodes)
	desc.Static.EventIdMaxValue = eventIdMax

	if desc.Static.Deadline, err = readOptionalDuration(r); err != nil {
		return desc, fmt.Errorf("registry: read deadline: %w", err)
	}
	if desc.Static.NotifierCreatedEvent, err = readOptionalUint64(r); err != nil {
		return desc, fmt.Errorf("registry: read notifier created event: %w", err)
	}
	if desc.Static.NotifierDroppedEvent, err = readOptionalUint64(r); err != nil {
		return desc, fmt.Errorf("registry: read notifier dropped event: %w", err)
	}
	if desc.Static.NotifierDeadEvent, err = readOptionalUint64(r); err != nil {
		return desc, fmt.Errorf("registry: read notifier dead event: %w", err)
	}

	attrCount, err := readUint32(r)
	if err != nil {
		return desc, fmt.Errorf("registry: read attribute count: %w", err)
	}
	if attrCount > 0 {
		desc.Attributes = make(AttributeSet, 0, attrCount)
		for i := uint32(0); i < attrCount; i++ {
			key, err := readString(r)
			if err != nil {
				return desc, fmt.Errorf("registry: read attribute key: %w", err)
			}
			value, err := readString(r)
			if err != nil {
				return desc, fmt.Errorf("registry: read attribute value: %w", err)
			}
			desc.Attributes = append(desc.Attributes, Attribute{Key: key, Value: value})
		}
	}

	return desc, nil
}

// errVersionMismatch marks a decode-time version mismatch so that
// readDescriptor in registry.go can translate it into
// shmerr.ErrVersionMismatch; codec.go itself reports only plain errors.
type errVersionMismatch struct{ got uint32 }

func (e errVersionMismatch) Error() string {
	return fmt.Sprintf("registry: descriptor schema version %d, want %d", e.got, schemaVersion)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt32(buf *bytes.Buffer, v int32) { writeUint32(buf, uint32(v)) }

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) { writeUint64(buf, uint64(v)) }

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeOptionalDuration(buf *bytes.Buffer, d *time.Duration) {
	if d == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeInt64(buf, int64(*d))
}

func writeOptionalUint64(buf *bytes.Buffer, v *uint64) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeUint64(buf, *v)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readInt32(r *bytes.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readOptionalDuration(r *bytes.Reader) (*time.Duration, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	nanos, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	d := time.Duration(nanos)
	return &d, nil
}

func readOptionalUint64(r *bytes.Reader) (*uint64, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
