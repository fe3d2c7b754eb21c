package knowledge

import (
	"testing"

	"invest-assist-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onboardingResponses() map[string]map[string]string {
	return map[string]map[string]string{
		"onboarding": {
			"register":  "To register, tap Sign Up and verify your mobile number.",
			"kyc":       "KYC is a one-time identity verification.",
			"pan":       "A PAN card is mandatory for investing.",
			"aadhaar":   "Aadhaar is used for e-KYC.",
			"documents": "You need PAN, Aadhaar and a bank proof.",
			"tat":       "Accounts are usually activated within 24 hours.",
		},
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"How do I register?", "how do i register"},
		{"  What's   the\tTAT!!  ", "whats the tat"},
		{"PAN-card / Aadhaar", "pancard aadhaar"},
		{"", ""},
		{"???", ""},
		{"Résumé  ₹500 ", "résumé 500"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
	assert.Equal(t, Normalize("How do I register?"), Normalize(Normalize("How do I register?")))
}

func TestMatch_LegacyRegisterWithEmptyFlows(t *testing.T) {
	cfg := config.KnowledgeConfig{Responses: onboardingResponses()}
	table := BuildTable(cfg)

	reply, ok := Match("How do I register?", table)
	require.True(t, ok)
	assert.Equal(t, cfg.Response("onboarding.register"), reply.Text)

	rule, ok := table.Lookup("How do I register?")
	require.True(t, ok)
	assert.Equal(t, KindLegacyRegex, rule.Kind)
	assert.Equal(t, "register", rule.Name)
}

func TestMatch_LegacyOrder(t *testing.T) {
	table := BuildTable(config.KnowledgeConfig{Responses: onboardingResponses()})

	cases := []struct {
		message string
		rule    string
	}{
		{"I want to sign up", "register"},
		{"what is kyc", "kyc"},
		{"Is PAN card mandatory?", "pan"},
		{"do you need my aadhar", "aadhaar"},
		{"Which documents are required?", "documents"},
		{"How long does activation take?", "tat"},
		// register 优先于 kyc
		{"Can I register without KYC?", "register"},
		// kyc 优先于 documents
		{"documents needed for kyc", "kyc"},
	}
	for _, tc := range cases {
		rule, ok := table.Lookup(tc.message)
		require.True(t, ok, tc.message)
		assert.Equal(t, tc.rule, rule.Name, tc.message)
	}

	_, ok := table.Lookup("company expansion plans")
	assert.False(t, ok, "pan must only match as a whole word")
}

func TestMatch_FlowsThenIntentsThenLegacy(t *testing.T) {
	cfg := config.KnowledgeConfig{
		Flows: []config.FlowConfig{
			{Name: "greeting", Triggers: []string{"Hello!", "hi there"}, Response: "Hi! How can I help?", Suggested: []string{"How do I register?"}},
		},
		Intents: []config.IntentConfig{
			{Name: "sip", Keywords: []string{"sip"}, Synonyms: []string{"systematic investment"}, Response: "A SIP invests a fixed amount regularly.", Suggested: []string{"How do I start a SIP?"}},
			{Name: "nav", Keywords: []string{"nav"}, Synonyms: []string{"net asset value"}, Response: "NAV is the per-unit value of a fund."},
			{Name: "account", Keywords: []string{"account"}, Response: "Account details are in your profile."},
		},
		Responses: onboardingResponses(),
	}
	table := BuildTable(cfg)
	require.Len(t, table, 1+3+6)
	assert.Equal(t, KindExact, table[0].Kind)
	assert.Equal(t, KindFuzzy, table[1].Kind)
	assert.Equal(t, KindLegacyRegex, table[len(table)-1].Kind)

	reply, ok := Match("HELLO, can you explain SIP?", table)
	require.True(t, ok)
	assert.Equal(t, "Hi! How can I help?", reply.Text)
	assert.Equal(t, []string{"How do I register?"}, reply.Suggested)

	reply, ok = Match("What is a systematic investment plan?", table)
	require.True(t, ok)
	assert.Equal(t, "A SIP invests a fixed amount regularly.", reply.Text)

	// 同时含 sip 与 nav，按意图配置顺序 sip 先命中
	reply, ok = Match("nav of my sip", table)
	require.True(t, ok)
	assert.Equal(t, "A SIP invests a fixed amount regularly.", reply.Text)

	// 模糊意图优先于开户类正则
	reply, ok = Match("open an account", table)
	require.True(t, ok)
	assert.Equal(t, "Account details are in your profile.", reply.Text)

	_, ok = Match("tell me something unrelated", table)
	assert.False(t, ok)
}

func TestMatch_IsPureAndDeterministic(t *testing.T) {
	table := BuildTable(config.KnowledgeConfig{Responses: onboardingResponses()})

	first, ok1 := Match("What documents do I need?", table)
	first.Suggested[0] = "mutated"
	second, ok2 := Match("What documents do I need?", table)
	third, _ := Match("What documents do I need?", table)

	assert.Equal(t, ok1, ok2)
	assert.Equal(t, second, third)
	assert.NotEqual(t, "mutated", second.Suggested[0])
}

func TestBuildTable_SkipsEmptyPatternsAndResponses(t *testing.T) {
	cfg := config.KnowledgeConfig{
		Flows: []config.FlowConfig{
			{Name: "blank", Triggers: []string{"?!", "  "}, Response: "should never match"},
			{Name: "silent", Triggers: []string{"hello"}},
		},
		Responses: map[string]map[string]string{"onboarding": {"kyc": "KYC text"}},
	}
	table := BuildTable(cfg)
	require.Len(t, table, 1)
	assert.Equal(t, "kyc", table[0].Name)

	_, ok := Match("anything at all", table)
	assert.False(t, ok)
	_, ok = Match("", table)
	assert.False(t, ok)
}
