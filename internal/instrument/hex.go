package instrument

import (
	"encoding/hex"
	"strings"

	"github.com/keithehenry/MSP430/internal/errors"
)

// ParseHex 解析操作员输入的十六进制字符串，如 "0a1B" 或 "0a 1b"。
// 字节之间的空白被忽略，字节内部不能有空白（"0 a" 非法）；空输入返回 nil, nil。
func ParseHex(s string) ([]byte, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	for _, f := range fields {
		if len(f)%2 != 0 {
			return nil, errors.Newf(errors.ErrHexFormat, "%q: 十六进制数字必须成对出现", s)
		}
	}
	compact := strings.Join(fields, "")

	data, err := hex.DecodeString(compact)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrHexFormat, "%q", s)
	}
	return data, nil
}
