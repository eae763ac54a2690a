package audio

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodePCM16_LittleEndian(t *testing.T) {
	t.Parallel()

	encoded := EncodePCM16([]int16{1, -2, 0x4241})
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0xFE, 0xFF, 0x41, 0x42}, raw)
}

func TestDecodePCM16(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int16
		wantErr bool
	}{
		{name: "empty", input: "", want: []int16{}},
		{name: "single padded fragment", input: "AQD+/w==", want: []int16{1, -2}},
		{name: "concatenated padded fragments", input: "QQ==Qg==", want: []int16{0x4241}},
		{name: "newlines ignored", input: "AQD+\n/w==", want: []int16{1, -2}},
		{name: "odd trailing byte dropped", input: "QUJD", want: []int16{0x4241}},
		{name: "corrupt", input: "A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePCM16(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Splitting a sample stream anywhere, encoding each piece, and concatenating
// the text must decode back to the original stream.
func TestProperty_RoundTripAcrossFragments(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		samples := rapid.SliceOfN(rapid.Int16(), 0, 512).Draw(rt, "samples")
		cuts := rapid.SliceOfN(rapid.IntRange(0, len(samples)), 0, 8).Draw(rt, "cuts")

		var sb strings.Builder
		start := 0
		for _, c := range sortedUnique(cuts) {
			if c <= start {
				continue
			}
			sb.WriteString(EncodePCM16(samples[start:c]))
			start = c
		}
		sb.WriteString(EncodePCM16(samples[start:]))

		got, err := DecodePCM16(sb.String())
		if err != nil {
			rt.Fatalf("decode: %v", err)
		}
		if len(samples) == 0 {
			if len(got) != 0 {
				rt.Fatalf("expected no samples, got %d", len(got))
			}
			return
		}
		if len(got) != len(samples) {
			rt.Fatalf("length mismatch: got %d want %d", len(got), len(samples))
		}
		for i := range samples {
			if got[i] != samples[i] {
				rt.Fatalf("sample %d: got %d want %d", i, got[i], samples[i])
			}
		}
	})
}

func sortedUnique(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
