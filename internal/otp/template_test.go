package otp

import "testing"

func TestRenderMessage(t *testing.T) {
	testCases := []struct {
		name     string
		template string
		code     string
		expiry   int
		want     string
	}{
		{
			name:     "default template",
			template: "Kode OTP Anda untuk login WebPortal: {{otp}}. Kode ini berlaku selama {{expiry}} menit.",
			code:     "123456",
			expiry:   300,
			want:     "Kode OTP Anda untuk login WebPortal: 123456. Kode ini berlaku selama 5 menit.",
		},
		{name: "floor minutes", template: "{{expiry}}", code: "1", expiry: 119, want: "1"},
		{name: "under a minute", template: "{{expiry}}", code: "1", expiry: 59, want: "0"},
		{name: "first occurrence only", template: "{{otp}} {{otp}}", code: "42", expiry: 60, want: "42 {{otp}}"},
		{name: "no placeholders", template: "hello", code: "42", expiry: 60, want: "hello"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RenderMessage(tc.template, tc.code, tc.expiry); got != tc.want {
				t.Errorf("RenderMessage = %q, want %q", got, tc.want)
			}
		})
	}
}
