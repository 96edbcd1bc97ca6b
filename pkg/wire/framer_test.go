package wire

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestDecodeMultipleLines(t *testing.T) {
	envelopes, errs := Decode([]byte("{\"t\":\"x\",\"d\":1}\n{\"t\":\"y\",\"d\":2}\n\n"))
	require.Empty(t, errs)
	require.Len(t, envelopes, 2)
	require.Equal(t, "x", envelopes[0].Type)
	require.JSONEq(t, "1", string(envelopes[0].Data))
	require.Equal(t, "y", envelopes[1].Type)
	require.JSONEq(t, "2", string(envelopes[1].Data))
}

func TestDecodeSkipsBlankLines(t *testing.T) {
	envelopes, errs := Decode([]byte("\n  \n{\"t\":\"a\"}\n\t\n"))
	require.Empty(t, errs)
	require.Len(t, envelopes, 1)
	require.Equal(t, "a", envelopes[0].Type)
	require.Empty(t, envelopes[0].Data)
}

func TestDecodeMalformedLineDoesNotDropSiblings(t *testing.T) {
	envelopes, errs := Decode([]byte("{\"t\":\"good\",\"d\":true}\n{not json}\n{\"t\":\"also-good\"}"))
	require.Len(t, errs, 1)
	var fe *FramingError
	require.ErrorAs(t, errs[0], &fe)
	require.Equal(t, 2, fe.Line)
	require.Len(t, envelopes, 2)
	require.Equal(t, "good", envelopes[0].Type)
	require.Equal(t, "also-good", envelopes[1].Type)
}

func TestEncodeJoinsWithNewline(t *testing.T) {
	a, err := NewEnvelope("chat", map[string]string{"text": "hi"})
	require.NoError(t, err)
	b, err := NewEnvelope(TypePing, 12345)
	require.NoError(t, err)

	data, err := Encode([]Envelope{a, b})
	require.NoError(t, err)
	require.Equal(t, "{\"t\":\"chat\",\"d\":{\"text\":\"hi\"}}\n{\"t\":\"$ping\",\"d\":12345}", string(data))
}

func TestIsControl(t *testing.T) {
	require.True(t, IsControl(TypePing))
	require.True(t, IsControl("$custom"))
	require.False(t, IsControl("chat"))
	require.False(t, IsControl(""))
}

func TestEncodeDecodeOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(types)) preserves count and order", prop.ForAll(
		func(types []string) bool {
			envelopes := make([]Envelope, 0, len(types))
			for _, typ := range types {
				env, err := NewEnvelope(typ, nil)
				if err != nil {
					return false
				}
				envelopes = append(envelopes, env)
			}
			data, err := Encode(envelopes)
			if err != nil {
				return false
			}
			decoded, errs := Decode(data)
			if len(errs) != 0 || len(decoded) != len(envelopes) {
				return false
			}
			for i := range decoded {
				if decoded[i].Type != envelopes[i].Type {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
