package fixture

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opcheck/internal/eval"
	"github.com/roach88/opcheck/internal/harness"
)

func TestImportFile_OperatorFixture(t *testing.T) {
	def, err := ImportFile("testdata/0002-operators.c", "")
	require.NoError(t, err)

	assert.Equal(t, "0002-operators", def.Name)
	assert.Equal(t, "imported from 0002-operators.c", def.Description)
	assert.Equal(t, int64(0), def.Initial)
	require.NotNil(t, def.Final)
	assert.Equal(t, int64(0), *def.Final)
	require.Len(t, def.Cases, 14)

	assert.Equal(t, "x + 2", def.Cases[0].Expr)
	assert.Equal(t, int64(2), *def.Cases[0].Expect)
	assert.Equal(t, "-x", def.Cases[10].Expr)
	assert.Equal(t, int64(-2), *def.Cases[10].Expect)
	assert.Equal(t, "x + (x < 2)", def.Cases[13].Expr)
	assert.Equal(t, int64(0), *def.Cases[13].Expect)
}

func TestImportFile_MatchesHandWrittenSuite(t *testing.T) {
	def, err := ImportFile("testdata/0002-operators.c", "operators")
	require.NoError(t, err)
	imported, err := def.Build()
	require.NoError(t, err)

	written, err := harness.LoadSuite("../harness/testdata/suites/operators.yaml")
	require.NoError(t, err)

	require.Equal(t, written.Len(), imported.Len())
	for i, c := range imported.Cases() {
		assert.Equal(t, written.Cases()[i].String(), c.String(), "case %d", i)
		assert.Equal(t, written.Cases()[i].Expected(), c.Expected(), "case %d", i)
	}
}

func TestImportFile_ImportedSuitePasses(t *testing.T) {
	def, err := ImportFile("testdata/0002-operators.c", "")
	require.NoError(t, err)
	s, err := def.Build()
	require.NoError(t, err)

	result := harness.Run(context.Background(), s, eval.NewNative(eval.Width32))
	assert.True(t, result.Pass, "%v", result.Failures())
	assert.Equal(t, int64(0), result.Final)
}

func TestImport_RoundTripsThroughYAML(t *testing.T) {
	def, err := ImportFile("testdata/0002-operators.c", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, harness.EncodeSuite(&buf, def))
	decoded, err := harness.DecodeSuite(&buf)
	require.NoError(t, err)

	a, err := def.Build()
	require.NoError(t, err)
	b, err := decoded.Build()
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestImport_InitialAndHexExpectations(t *testing.T) {
	src := `
int x;
int main() {
	x = 5;
	x = x & 0x0f;   // 0x5
	x = ~x;         // -6
}
`
	def, err := Import(strings.NewReader(src), "hex")
	require.NoError(t, err)
	assert.Equal(t, int64(5), def.Initial)
	assert.Nil(t, def.Final)
	require.Len(t, def.Cases, 2)
	assert.Equal(t, int64(5), *def.Cases[0].Expect)
	assert.Equal(t, "~x", def.Cases[1].Expr)
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		msg  string
	}{
		{
			name: "assignment without expectation",
			src:  "x = 0;\nx = x + 1;\n",
			line: 2,
			msg:  "no expected value comment",
		},
		{
			name: "second initial value",
			src:  "x = 0;\nx = 1;\n",
			line: 2,
			msg:  "no expected value comment",
		},
		{
			name: "comment is not a number",
			src:  "x = x + 1; // one\n",
			line: 1,
			msg:  `comment "// one" is not an expected value`,
		},
		{
			name: "literal case",
			src:  "x = 3; // 3\n",
			line: 1,
			msg:  "applies no operator",
		},
		{
			name: "bad expression",
			src:  "x = x +; // 1\n",
			line: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(strings.NewReader(tt.src), "bad")
			require.Error(t, err)

			var le *LineError
			require.True(t, errors.As(err, &le), "want LineError, got %v", err)
			assert.Equal(t, tt.line, le.Line)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestImport_NoCases(t *testing.T) {
	_, err := Import(strings.NewReader("int x;\nint main() { return x; }\n"), "empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cases found")
}

func TestImportFile_Missing(t *testing.T) {
	_, err := ImportFile("testdata/missing.c", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import fixture")
}

func TestImport_NegativeInitialValue(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"x = -1;", -1},
		{"x = - 0x10;", -16},
		{"x = -(7);", -7},
		{"x = -9223372036854775808;", math.MinInt64},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			def, err := Import(strings.NewReader(tt.src+"\nx = x + 1; // 0\n"), "neg")
			require.NoError(t, err)
			assert.Equal(t, tt.want, def.Initial)
			require.Len(t, def.Cases, 1)
		})
	}
}
