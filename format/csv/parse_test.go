package csv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpras-dashboard/sarpras-sync/format"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []hub.Raw
	}{
		{
			name:  "comma separated",
			input: "npsn,nama,kelas_baik\n20212345,SD Negeri 1,5\n",
			want:  []hub.Raw{{"npsn": "20212345", "nama": "SD Negeri 1", "kelas_baik": "5"}},
		},
		{
			name:  "semicolon separated with decimal commas",
			input: "npsn;lintang\n1;-1,25\n",
			want:  []hub.Raw{{"npsn": "1", "lintang": "-1,25"}},
		},
		{
			name:  "blank cells and rows dropped",
			input: "npsn,nama\n1,\n,\n2,TK\n",
			want:  []hub.Raw{{"npsn": "1"}, {"npsn": "2", "nama": "TK"}},
		},
		{
			name:  "blank header named by position",
			input: "npsn,\n1,x\n",
			want:  []hub.Raw{{"npsn": "1", "col_2": "x"}},
		},
		{
			name:  "utf-8 bom stripped",
			input: "\xEF\xBB\xBFnpsn\n7\n",
			want:  []hub.Raw{{"npsn": "7"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := format.NewParseOptions()
			got, err := (&Format{}).Parse(strings.NewReader(tt.input), opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "table", opts.Shape)
		})
	}
}

func TestSerialize(t *testing.T) {
	rows := []map[string]any{
		{"kecamatan": "Batang", "npsn": "1", "good": float64(5)},
		{"kecamatan": "Cibodas", "npsn": "2", "labs": []any{"ipa"}},
	}

	var buf bytes.Buffer
	require.NoError(t, (&Format{}).Serialize(&buf, rows, format.NewSerializeOptions()))
	assert.Equal(t, "good,kecamatan,labs,npsn\n5,Batang,,1\n,Cibodas,\"[\"\"ipa\"\"]\",2\n", buf.String())
}

func TestCanParse(t *testing.T) {
	f := &Format{}
	assert.True(t, f.CanParse([]byte("a;b\n1;2")))
	assert.True(t, f.CanParse([]byte("npsn\tnama\n1\tSD X")))
	assert.False(t, f.CanParse([]byte("a,b\n1;2")), "data line must use the header delimiter")
	assert.False(t, f.CanParse([]byte("npsn;nama\nplain text")))
	assert.False(t, f.CanParse([]byte(`[{"a":1}]`)))
	assert.False(t, f.CanParse([]byte("single line")))
}
