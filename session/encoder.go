package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const sessionFormatVersionCurrent = 1

// ErrCorrupt is returned by Decode for unreadable input.
var ErrCorrupt = errors.New("session blob corrupt")

// Encode serializes s into the versioned binary form used by every Storage.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersionCurrent)

	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"userID", s.Identity.UserID, math.MaxUint8},
		{"email", s.Identity.Email, math.MaxUint16},
		{"role", s.Identity.Role, math.MaxUint8},
		{"access token", s.AccessToken, math.MaxUint16},
		{"refresh token", s.RefreshToken, math.MaxUint16},
	}
	for _, f := range fields {
		if len(f.value) > f.max {
			return nil, fmt.Errorf("%s too long", f.name)
		}
		if f.max == math.MaxUint8 {
			buf.WriteByte(byte(len(f.value)))
		} else {
			_ = binary.Write(&buf, binary.BigEndian, uint16(len(f.value)))
		}
		buf.WriteString(f.value)
	}

	_ = binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli())
	_ = binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli())

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != sessionFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorrupt, version)
	}

	s := &Session{}
	targets := []struct {
		dst  *string
		wide bool
	}{
		{&s.Identity.UserID, false},
		{&s.Identity.Email, true},
		{&s.Identity.Role, false},
		{&s.AccessToken, true},
		{&s.RefreshToken, true},
	}
	for _, f := range targets {
		if *f.dst, err = readString(r, f.wide); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	var created, expires int64
	if err := binary.Read(r, binary.BigEndian, &created); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := binary.Read(r, binary.BigEndian, &expires); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	s.CreatedAt = time.UnixMilli(created)
	s.ExpiresAt = time.UnixMilli(expires)

	return s, nil
}

func readString(r *bytes.Reader, wide bool) (string, error) {
	var n int
	if wide {
		var l uint16
		if err := binary.Read(r, binary.BigEndian, &l); err != nil {
			return "", err
		}
		n = int(l)
	} else {
		l, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		n = int(l)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
