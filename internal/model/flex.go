package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexString はJSON上で文字列・数値のどちらでも届く値を文字列として受け取る型。
// バックエンドは同じフィールドを数値IDで返すことがあるため、ここで吸収する。
// nullは空文字列として扱う。
type FlexString string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(fmt.Sprint(v))
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("FlexString: unsupported JSON value %s", string(b))
		}
		*f = FlexString(n.String())
		return nil
	}
}

// String は文字列値を返す。
func (f FlexString) String() string {
	return string(f)
}
