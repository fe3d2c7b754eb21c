package knowledge

import (
	"path/filepath"
	"testing"

	"invest-assist-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 默认配置文件里的规则表需要覆盖最常见的开户问题。
func TestShippedConfigTable(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	table := BuildTable(cfg.Knowledge)

	cases := []struct {
		message string
		rule    string
	}{
		{"How do I register?", "register"},
		{"what is KYC", "kyc"},
		{"Is a PAN card mandatory?", "pan"},
		{"aadhar otp not received", "aadhaar"},
		{"Which documents are required?", "documents"},
		{"How long does activation take?", "tat"},
		{"What is a SIP?", "sip"},
		{"I want to talk to support", "talk_to_support"},
	}
	for _, tc := range cases {
		rule, ok := table.Lookup(tc.message)
		require.True(t, ok, tc.message)
		assert.Equal(t, tc.rule, rule.Name, tc.message)
	}

	reply, ok := Match("How do I register?", table)
	require.True(t, ok)
	assert.Equal(t, cfg.Knowledge.Response("onboarding.register"), reply.Text)

	_, ok = table.Lookup("Tell me about index rebalancing")
	assert.False(t, ok)
}
