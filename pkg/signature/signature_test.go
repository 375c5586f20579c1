package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const secret = "s3cret"

func flipLastHex(h string) string {
	last := h[len(h)-1]
	repl := byte('0')
	if last == '0' {
		repl = '1'
	}
	return h[:len(h)-1] + string(repl)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	valid := Sign(body, secret)

	tests := []struct {
		name   string
		body   []byte
		header string
		secret string
		want   bool
	}{
		{"valid", body, valid, secret, true},
		{"uppercase hex", body, Prefix + strings.ToUpper(strings.TrimPrefix(valid, Prefix)), secret, true},
		{"one hex char differs", body, flipLastHex(valid), secret, false},
		{"body changed", []byte(`{"ref":"refs/heads/dev"}`), valid, secret, false},
		{"wrong secret", body, valid, "other", false},
		{"missing prefix", body, strings.TrimPrefix(valid, Prefix), secret, false},
		{"sha1 prefix", body, "sha1=" + strings.TrimPrefix(valid, Prefix), secret, false},
		{"bad hex", body, Prefix + "zz", secret, false},
		{"truncated", body, valid[:len(valid)-2], secret, false},
		{"empty header", body, "", secret, false},
		{"empty secret", body, valid, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.body, tt.header, tt.secret))
		})
	}
}

func TestSign_Format(t *testing.T) {
	sig := Sign([]byte("x"), secret)
	assert.True(t, strings.HasPrefix(sig, Prefix))
	assert.Len(t, strings.TrimPrefix(sig, Prefix), 64)
}
