package copyexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeExitCode_Severity(t *testing.T) {
	tests := []struct {
		name string
		code int
		want Severity
	}{
		{"clean no-op", 0, SeveritySuccess},
		{"files copied", ExitFilesCopied, SeveritySuccess},
		{"extras only", ExitExtras, SeveritySuccess},
		{"copied plus extras", ExitFilesCopied | ExitExtras, SeveritySuccess},
		{"mismatches", ExitMismatches, SeverityWarning},
		{"copied plus mismatches", ExitFilesCopied | ExitMismatches, SeverityWarning},
		{"some failed", ExitSomeFailed, SeverityError},
		{"failed plus mismatches", ExitSomeFailed | ExitMismatches, SeverityError},
		{"fatal", ExitFatal, SeverityFatal},
		{"fatal wins over everything", ExitFatal | ExitSomeFailed | ExitMismatches | ExitFilesCopied, SeverityFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := DecodeExitCode(tt.code)
			assert.Equal(t, tt.want, out.Severity)
		})
	}
}

func TestDecodeExitCode_Flags(t *testing.T) {
	out := DecodeExitCode(ExitFilesCopied | ExitMismatches | ExitSomeFailed)

	assert.True(t, out.FilesCopied)
	assert.True(t, out.Mismatches)
	assert.True(t, out.SomeFailed)
	assert.False(t, out.ExtrasPresent)
	assert.False(t, out.Fatal)
	assert.True(t, out.Retryable())
}

func TestDecodeExitCode_SuccessNotRetryable(t *testing.T) {
	assert.False(t, DecodeExitCode(ExitFilesCopied).Retryable())
	assert.False(t, DecodeExitCode(ExitMismatches).Retryable())
	assert.True(t, DecodeExitCode(ExitFatal).Retryable())
}
