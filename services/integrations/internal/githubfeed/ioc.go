package githubfeed

import (
	"net"
	"regexp"
	"strings"
)

// Indicator types produced by the feed.
const (
	TypeIP       = "IP"
	TypeIPv6     = "IPv6"
	TypeCIDR     = "CIDR"
	TypeIPv6CIDR = "IPv6CIDR"
	TypeDomain   = "Domain"
	TypeURL      = "URL"
	TypeEmail    = "Email"
	TypeFile     = "File"
	TypeCVE      = "CVE"
	TypeYARA     = "YARA Rule"
)

var (
	cvePattern    = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)
	urlPattern    = regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s"'<>\x60]+`)
	emailPattern  = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,24}\b`)
	cidrPattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}/\d{1,2}\b`)
	ipv4Pattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	ipv6Pattern   = regexp.MustCompile(`(?im)(?:^|[\s,;(\[])((?:[0-9a-f]{0,4}:){2,7}[0-9a-f]{0,4}(?:/\d{1,3})?)`)
	sha256Pattern = regexp.MustCompile(`(?i)\b[a-f0-9]{64}\b`)
	sha1Pattern   = regexp.MustCompile(`(?i)\b[a-f0-9]{40}\b`)
	md5Pattern    = regexp.MustCompile(`(?i)\b[a-f0-9]{32}\b`)
	domainPattern = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9\-]{0,61}[a-z0-9])?\.)+[a-z]{2,24}\b`)

	defangReplacer = strings.NewReplacer(
		"hxxps://", "https://", "hxxp://", "http://",
		"[.]", ".", "(.)", ".", "{.}", ".", "[dot]", ".",
		"[@]", "@", "[at]", "@", "[:]", ":",
	)
)

// fileSuffixes are not treated as top-level domains.
var fileSuffixes = map[string]bool{
	"txt": true, "exe": true, "dll": true, "yar": true, "yara": true, "json": true,
	"py": true, "ps1": true, "bat": true, "zip": true, "rar": true, "doc": true,
	"docx": true, "xls": true, "xlsx": true, "pdf": true, "bin": true, "sh": true,
	"md": true, "csv": true, "log": true, "tmp": true, "dat": true, "vbs": true,
}

// ExtractedIOC is one value found in free text.
type ExtractedIOC struct {
	Value string
	Type  string
}

// ExtractIOCs finds indicators in text. Defanged notation is restored first,
// every value is reported once, and domains are only taken from text outside
// URLs and email addresses.
func ExtractIOCs(text string) []ExtractedIOC {
	text = defangReplacer.Replace(text)

	var out []ExtractedIOC
	seen := make(map[string]bool)
	add := func(value, typ string) {
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		out = append(out, ExtractedIOC{Value: value, Type: typ})
	}

	// covered holds addresses already reported as part of a CIDR.
	covered := make(map[string]bool)

	for _, v := range cvePattern.FindAllString(text, -1) {
		add(strings.ToUpper(v), TypeCVE)
	}
	for _, v := range urlPattern.FindAllString(text, -1) {
		v = strings.TrimRight(v, ".,;:)]}")
		add(v, TypeURL)
	}
	for _, v := range emailPattern.FindAllString(text, -1) {
		add(strings.ToLower(v), TypeEmail)
	}
	for _, v := range cidrPattern.FindAllString(text, -1) {
		if _, _, err := net.ParseCIDR(v); err == nil {
			add(v, TypeCIDR)
			covered[v[:strings.Index(v, "/")]] = true
		}
	}
	for _, v := range ipv4Pattern.FindAllString(text, -1) {
		if ip := net.ParseIP(v); ip != nil && ip.To4() != nil && !covered[v] {
			add(v, TypeIP)
		}
	}
	for _, m := range ipv6Pattern.FindAllStringSubmatch(text, -1) {
		v := m[1]
		if strings.Trim(v, ":") == "" {
			continue
		}
		if strings.Contains(v, "/") {
			if _, _, err := net.ParseCIDR(v); err == nil {
				add(v, TypeIPv6CIDR)
			}
			continue
		}
		if ip := net.ParseIP(v); ip != nil && ip.To4() == nil {
			add(v, TypeIPv6)
		}
	}
	for _, v := range sha256Pattern.FindAllString(text, -1) {
		add(strings.ToLower(v), TypeFile)
	}
	for _, v := range sha1Pattern.FindAllString(text, -1) {
		add(strings.ToLower(v), TypeFile)
	}
	for _, v := range md5Pattern.FindAllString(text, -1) {
		add(strings.ToLower(v), TypeFile)
	}
	rest := emailPattern.ReplaceAllString(urlPattern.ReplaceAllString(text, " "), " ")
	for _, v := range domainPattern.FindAllString(rest, -1) {
		lower := strings.ToLower(v)
		if fileSuffixes[lower[strings.LastIndex(lower, ".")+1:]] {
			continue
		}
		add(lower, TypeDomain)
	}

	return out
}
