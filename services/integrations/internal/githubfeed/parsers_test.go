package githubfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yaraFile = `import "pe"

/* header comment with a fake rule { */
rule Classic_Rule : apt loader
{
    meta:
        description = "Detects the classic loader"
        author = "Threat Intel Team"
        reference = "https://example.com/report"
        date = "2024-04-01"
        id = "1a2b3c"
    strings:
        $s1 = "evil.exe" ascii wide nocase
        $h1 = { 4D 5A 90 00
                03 00 }
        $r1 = /https?:\/\/[a-z]{3,10}\.xyz/
    condition:
        uint16(0) == 0x5A4D and
        any of them
}

private rule Braces_In_Strings {
    strings:
        $a = "function() { return }"
        $b = "}}}"
    condition:
        all of them
}

// trailing rule
global rule Minimal { condition: true }
`

func TestSplitYARARules(t *testing.T) {
	rules := SplitYARARules(yaraFile)
	require.Len(t, rules, 3)
	assert.True(t, len(rules[0]) > 0 && rules[0][:4] == "rule")
	assert.Contains(t, rules[1], `$b = "}}}"`)
	assert.Equal(t, "private rule Braces_In_Strings {", rules[1][:len("private rule Braces_In_Strings {")])
	assert.Equal(t, "global rule Minimal { condition: true }", rules[2])
}

func TestParseYARARule(t *testing.T) {
	rules := SplitYARARules(yaraFile)

	rule, err := ParseYARARule(rules[0])
	require.NoError(t, err)
	assert.Equal(t, "Classic_Rule", rule.Name)
	assert.Equal(t, []string{"apt", "loader"}, rule.Tags)
	assert.Equal(t, "Detects the classic loader", rule.MetaValue("description"))
	assert.Equal(t, "2024-04-01", rule.MetaValue("date"))
	assert.Equal(t, "uint16(0) == 0x5A4D and any of them", rule.Condition)
	assert.Equal(t, []RuleString{
		{Index: "$s1", Value: "evil.exe", Type: "text", Modifiers: []string{"ascii", "wide", "nocase"}},
		{Index: "$h1", Value: "4D 5A 90 00 03 00", Type: "hex", Modifiers: []string{}},
		{Index: "$r1", Value: `https?:\/\/[a-z]{3,10}\.xyz`, Type: "regex", Modifiers: []string{}},
	}, rule.Strings)

	rule, err = ParseYARARule(rules[1])
	require.NoError(t, err)
	assert.Equal(t, "function() { return }", rule.Strings[0].Value)
	assert.Equal(t, "all of them", rule.Condition)

	rule, err = ParseYARARule(rules[2])
	require.NoError(t, err)
	assert.Equal(t, "true", rule.Condition)
}

func TestParseBrokenYARARule(t *testing.T) {
	_, err := ParseYARARule("rule Broken { strings: $a = \"x\" }")
	assert.ErrorContains(t, err, "has no condition")

	_, err = ParseYARARule("not a rule")
	assert.Error(t, err)
}

func TestExtractIOCs(t *testing.T) {
	text := `Campaign notes for CVE-2024-3400
C2: hxxp://bad-domain[.]com/gate.php and 203.0.113.7
Range 198.51.100.0/24 contains 198.51.100.0
Mail: Phisher@Evil-Mail.net
Dropper evil.exe sha256 E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855
md5 d41d8cd98f00b204e9800998ecf8427e
v6 2001:db8::1 and lateral.example.org
203.0.113.7 repeated`

	got := ExtractIOCs(text)
	assert.Equal(t, []ExtractedIOC{
		{Value: "CVE-2024-3400", Type: TypeCVE},
		{Value: "http://bad-domain.com/gate.php", Type: TypeURL},
		{Value: "phisher@evil-mail.net", Type: TypeEmail},
		{Value: "198.51.100.0/24", Type: TypeCIDR},
		{Value: "203.0.113.7", Type: TypeIP},
		{Value: "2001:db8::1", Type: TypeIPv6},
		{Value: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Type: TypeFile},
		{Value: "d41d8cd98f00b204e9800998ecf8427e", Type: TypeFile},
		{Value: "lateral.example.org", Type: TypeDomain},
	}, got)
}

const stixBundle = `{
  "type": "bundle",
  "id": "bundle--1",
  "objects": [
    {"type": "indicator", "id": "indicator--1", "created": "2024-01-01T00:00:00.000Z",
     "pattern": "[ipv4-addr:value = '192.0.2.10'] OR [domain-name:value = 'c2.example.net']",
     "pattern_type": "stix", "labels": ["malicious-activity"], "confidence": 80},
    {"type": "indicator", "id": "indicator--2",
     "pattern": "[file:hashes.'SHA-256' = 'aec070645fe53ee3b3763059376134f058cc337247c978add178b6ccdfb0019f']"},
    {"type": "indicator", "id": "indicator--3", "pattern": "rule x { condition: true }", "pattern_type": "yara"},
    {"type": "malware", "id": "malware--1", "name": "BadLoader", "description": "loader"},
    {"type": "relationship", "id": "relationship--1"}
  ]
}`

func TestParseSTIX(t *testing.T) {
	got, err := ParseSTIX([]byte(stixBundle))
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "192.0.2.10", got[0].Value)
	assert.Equal(t, TypeIP, got[0].Type)
	assert.Equal(t, "indicator--1", got[0].Fields["stixid"])
	assert.Equal(t, []string{"malicious-activity"}, got[0].Fields["tags"])
	assert.Equal(t, 80, got[0].Fields["confidence"])

	assert.Equal(t, TypeDomain, got[1].Type)
	assert.Equal(t, TypeFile, got[2].Type)
	assert.Equal(t, "BadLoader", got[3].Value)
	assert.Equal(t, "Malware", got[3].Type)

	_, err = ParseSTIX([]byte("not json"))
	assert.Error(t, err)
}

func TestFilterFiles(t *testing.T) {
	files := []CommitFile{
		{Filename: "feeds/file1.txt", Status: "added"},
		{Filename: "feeds/file2.TXT", Status: "modified"},
		{Filename: "feeds/file3.txt", Status: "removed"},
		{Filename: "feeds/file4.txt", Status: "renamed"},
		{Filename: "feeds/file5.txt", Status: "added"},
		{Filename: "feeds/rules.yar", Status: "added"},
		{Filename: "feeds/file1.txt", Status: "modified"},
	}
	assert.Equal(t, []string{"feeds/file1.txt", "feeds/file2.TXT", "feeds/file5.txt"}, FilterFiles(files, []string{"txt"}))
	assert.Equal(t, []string{"feeds/rules.yar"}, FilterFiles(files, []string{".yar"}))
}
