// Package artifact 模型文件编解码
//
// trial 以 base64(pickle) 文本形式上报模型。晋升前先完整反序列化一遍确认数据可读，
// 再重新编码为与 Python codecs.encode(..., "base64") 一致的规范格式。
package artifact

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"
)

// ErrCorruptArtifact 模型文件无法解码
var ErrCorruptArtifact = errors.New("corrupt model artifact")

const lineWidth = 76

// Canonicalize 校验并重新编码模型文件
func Canonicalize(encoded string) (string, error) {
	raw, err := Decode(encoded)
	if err != nil {
		return "", err
	}
	if err := Validate(raw); err != nil {
		return "", err
	}
	return Encode(raw), nil
}

// Decode 容忍换行和缺省填充的 base64 解码
func Decode(encoded string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)
	if compact == "" {
		return nil, fmt.Errorf("%w: empty", ErrCorruptArtifact)
	}

	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(compact)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrCorruptArtifact, err)
	}
	return raw, nil
}

// Validate 完整反序列化一次 pickle 数据，Python 类一律替换为占位对象
func Validate(raw []byte) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty pickle", ErrCorruptArtifact)
	}
	u := pickle.NewUnpickler(bytes.NewReader(raw))
	u.FindClass = func(module, name string) (interface{}, error) {
		return &pyObject{module: module, name: name}, nil
	}
	if _, err := u.Load(); err != nil {
		return fmt.Errorf("%w: pickle: %v", ErrCorruptArtifact, err)
	}
	return nil
}

// Encode 标准 base64，每 76 列换行并以换行结尾
func Encode(raw []byte) string {
	enc := base64.StdEncoding.EncodeToString(raw)
	var b strings.Builder
	b.Grow(len(enc) + len(enc)/lineWidth + 1)
	for len(enc) > lineWidth {
		b.WriteString(enc[:lineWidth])
		b.WriteByte('\n')
		enc = enc[lineWidth:]
	}
	if enc != "" {
		b.WriteString(enc)
		b.WriteByte('\n')
	}
	return b.String()
}

// pyObject 代替任意 Python 类及其实例，只承接构造参数与状态
type pyObject struct {
	module string
	name   string
	args   []interface{}
	state  interface{}
	attrs  [][2]interface{}
}

func (o *pyObject) Call(args ...interface{}) (interface{}, error) {
	return &pyObject{module: o.module, name: o.name, args: args}, nil
}

func (o *pyObject) PyNew(args ...interface{}) (interface{}, error) {
	return &pyObject{module: o.module, name: o.name, args: args}, nil
}

func (o *pyObject) PySetState(state interface{}) error {
	o.state = state
	return nil
}

func (o *pyObject) PyDictSet(key, value interface{}) error {
	o.attrs = append(o.attrs, [2]interface{}{key, value})
	return nil
}

func (o *pyObject) String() string {
	return o.module + "." + o.name
}
