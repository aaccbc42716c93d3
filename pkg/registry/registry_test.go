package registry

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serax/pkg/contract"
	sx "serax/pkg/serax"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	require.NoError(t, strictUnmarshal(nil, &o))
	assert.Zero(t, o.A)
	require.NoError(t, strictUnmarshal(json.RawMessage(`{"a":1}`), &o))
	assert.Equal(t, 1, o.A)
	assert.Error(t, strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o), "未知字段应报错")
}

// TestFactories 遍历注册表入口：空选项可构造，未知字段报错。
func TestFactories(t *testing.T) {
	cases := map[string]func(json.RawMessage) (any, error){
		"reader/fs":        func(r json.RawMessage) (any, error) { return Reader["fs"](r) },
		"splitter/lines":   func(r json.RawMessage) (any, error) { return Splitter["lines"](r) },
		"batcher/chunk":    func(r json.RawMessage) (any, error) { return Batcher["chunk"](r) },
		"decoder/serax":    func(r json.RawMessage) (any, error) { return Decoder["serax"](r) },
		"assembler/report": func(r json.RawMessage) (any, error) { return Assembler["report"](r) },
		"assembler/csv":    func(r json.RawMessage) (any, error) { return Assembler["csv"](r) },
		"writer/stdout":    func(r json.RawMessage) (any, error) { return Writer["stdout"](r) },
	}

	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			v, err := f(json.RawMessage(`{}`))
			require.NoError(t, err)
			assert.NotNil(t, v)
			_, err = f(json.RawMessage(`{"x":1}`))
			assert.Error(t, err, "未对未知字段报错")
		})
	}
}

func TestWriterFS(t *testing.T) {
	tmp := t.TempDir()
	_, err := Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, tmp)))
	require.NoError(t, err)
	_, err = Writer["fs"](json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp)))
	assert.Error(t, err)
	_, err = Writer["fs"](nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestDecoderOptions(t *testing.T) {
	_, err := Decoder["serax"](json.RawMessage(`{"builtin":"nope"}`))
	assert.ErrorIs(t, err, sx.ErrSchemaInvalid)

	_, err = Decoder["serax"](json.RawMessage(`{"builtin":"financial","policy":{"min_quality":80}}`))
	assert.NoError(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"fs", "stdout"}, Names(Writer))
	assert.Equal(t, []string{"serax"}, Names(Decoder))
	assert.Equal(t, []string{"csv", "report"}, Names(Assembler))
}

func TestAssemblerCSVOptions(t *testing.T) {
	_, err := Assembler["csv"](json.RawMessage(`{"delimiter":";"}`))
	assert.NoError(t, err)
	_, err = Assembler["csv"](json.RawMessage(`{"delimiter":";;"}`))
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
