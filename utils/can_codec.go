package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// EncodeFrame packs physical values into a frame. Missing signals take their
// default; values are clamped to the signal's [min, max] and then to what
// the bit field can hold.
func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) (can.Frame, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, err
	}
	if fd.DLC <= 0 || fd.DLC > 8 {
		return can.Frame{}, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}

	f := can.Frame{ID: fd.ID, Length: uint8(fd.DLC)}
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		if s.Max > s.Min {
			v = clamp(v, s.Min, s.Max)
		}

		raw := int64(math.Round((v - s.Offset) / s.Factor))
		raw = clampRaw(raw, s.BitLength, s.Signed)

		start, length := uint8(s.StartBit), uint8(s.BitLength)
		if s.Signed {
			f.Data.SetSignedBitsLittleEndian(start, length, raw)
		} else {
			f.Data.SetUnsignedBitsLittleEndian(start, length, uint64(raw))
		}
	}
	if err := f.Validate(); err != nil {
		return can.Frame{}, fmt.Errorf("frame %s: %w", fd.Name, err)
	}
	return f, nil
}

// DecodeFrame unpacks every signal of a known frame into physical values.
func (m *CANMap) DecodeFrame(frame can.Frame) (map[string]float64, error) {
	fd, err := m.FrameByID(frame.ID)
	if err != nil {
		return nil, err
	}
	if int(frame.Length) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", frame.ID, fd.DLC, frame.Length)
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		start, length := uint8(s.StartBit), uint8(s.BitLength)
		var raw float64
		if s.Signed {
			raw = float64(frame.Data.SignedBitsLittleEndian(start, length))
		} else {
			raw = float64(frame.Data.UnsignedBitsLittleEndian(start, length))
		}
		out[s.Name] = raw*s.Factor + s.Offset
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		max := int64((1 << bitLen) - 1)
		if raw < 0 {
			return 0
		}
		if raw > max {
			return max
		}
		return raw
	}
	min := -int64(1 << (bitLen - 1))
	max := int64((1 << (bitLen - 1)) - 1)
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}
