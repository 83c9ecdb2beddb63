package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithehenry/MSP430/internal/errors"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"blank", "   ", nil, false},
		{"single", "0a", []byte{0x0a}, false},
		{"upper", "FF", []byte{0xff}, false},
		{"multi", "01020304", []byte{1, 2, 3, 4}, false},
		{"spaced", "de ad be ef", []byte{0xde, 0xad, 0xbe, 0xef}, false},
		{"odd", "abc", nil, true},
		{"split pair", "0 a", nil, true},
		{"odd field", "0a1 b", nil, true},
		{"pairs of pairs", "0a1b 2c", []byte{0x0a, 0x1b, 0x2c}, false},
		{"not hex", "zz", nil, true},
		{"prefix", "0x10", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFormatError(err), "%v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
