package audio

import (
	"encoding/base64"
	"encoding/binary"
	"strings"
)

// PCM16ToBytes 将采样序列化为小端字节
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 将小端字节还原为采样。奇数长度时末尾字节被忽略。
func BytesToPCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// EncodePCM16 将采样编码为上游线格式（base64 of PCM16LE）
func EncodePCM16(samples []int16) string {
	return base64.StdEncoding.EncodeToString(PCM16ToBytes(samples))
}

// DecodePCM16 解码一段（可能由多个片段拼接而成的）base64 文本
func DecodePCM16(encoded string) ([]int16, error) {
	raw, err := DecodeConcatenated(encoded)
	if err != nil {
		return nil, err
	}
	return BytesToPCM16(raw), nil
}

// DecodeConcatenated decodes base64 text built by concatenating independently
// encoded fragments. Each fragment may carry its own '=' padding, so the
// text is split after every padding run and the pieces decoded in order.
func DecodeConcatenated(encoded string) ([]byte, error) {
	encoded = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, encoded)

	out := make([]byte, 0, base64.StdEncoding.DecodedLen(len(encoded)))
	for len(encoded) > 0 {
		end := strings.IndexByte(encoded, '=')
		var chunk string
		if end < 0 {
			chunk, encoded = encoded, ""
		} else {
			rest := end
			for rest < len(encoded) && encoded[rest] == '=' {
				rest++
			}
			chunk, encoded = encoded[:end], encoded[rest:]
		}
		if chunk == "" {
			continue
		}
		b, err := base64.RawStdEncoding.DecodeString(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
