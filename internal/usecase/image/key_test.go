package image

import (
	"testing"

	"github.com/imgvault/imgvault/pkg/types/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "cat", want: "cat"},
		{name: "mixed case kept", in: "MyCat", want: "MyCat"},
		{name: "digits dashes underscores", in: "cat_2-final", want: "cat_2-final"},
		{name: "spaces stripped", in: "my cat", want: "mycat"},
		{name: "unicode stripped", in: "koté", want: "kot"},
		{name: "surrounding whitespace", in: "  cat  ", want: "cat"},
		{name: "empty", in: "", wantErr: true},
		{name: "only whitespace", in: "   ", wantErr: true},
		{name: "no allowed characters", in: "!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeName(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errs.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeExtension(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "with dot", in: ".png", want: "png"},
		{name: "without dot", in: "png", want: "png"},
		{name: "upper case", in: ".PNG", want: "png"},
		{name: "whitespace", in: " .jpg ", want: "jpg"},
		{name: "empty", in: "", wantErr: true},
		{name: "bare dot", in: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeExtension(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errs.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveKey(t *testing.T) {
	assert.Equal(t, "images/cat.png", DeriveKey("cat", "png"))

	// deterministic: same input, same key, every time
	for i := 0; i < 100; i++ {
		assert.Equal(t, DeriveKey("cat", "png"), DeriveKey("cat", "png"))
	}

	// distinct pairs map to distinct keys
	keys := map[string]bool{}
	for _, pair := range [][2]string{
		{"cat", "png"}, {"cat", "jpg"}, {"dog", "png"}, {"cat-2", "png"},
	} {
		keys[DeriveKey(pair[0], pair[1])] = true
	}
	assert.Len(t, keys, 4)
}
