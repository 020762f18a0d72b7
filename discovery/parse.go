package discovery

import (
	"regexp"
	"strings"
)

// WWWAuthenticateParams holds the parsed parameters of a WWW-Authenticate
// header.
type WWWAuthenticateParams struct {
	Scheme              string
	Realm               string
	Scope               string
	Error               string
	ErrorDescription    string
	ResourceMetadataURL string
}

var challengeParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value. It supports
// the Bearer scheme with OAuth 2.0 parameters.
func ParseWWWAuthenticate(header string) *WWWAuthenticateParams {
	if header == "" {
		return nil
	}
	params := &WWWAuthenticateParams{}
	parts := strings.SplitN(header, " ", 2)
	params.Scheme = strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return params
	}
	for _, match := range challengeParamRegex.FindAllStringSubmatch(parts[1], -1) {
		key := strings.ToLower(match[1])
		value := match[2]
		switch key {
		case "realm":
			params.Realm = value
		case "scope":
			params.Scope = value
		case "error":
			params.Error = value
		case "error_description":
			params.ErrorDescription = value
		case "resource_metadata":
			params.ResourceMetadataURL = value
		}
	}
	return params
}

// IsOAuthChallenge reports whether the parameters describe a Bearer challenge
// pointing at an OAuth authorization flow.
func (p *WWWAuthenticateParams) IsOAuthChallenge() bool {
	if p == nil {
		return false
	}
	if !strings.EqualFold(p.Scheme, "Bearer") {
		return false
	}
	return p.Realm != "" || p.ResourceMetadataURL != ""
}
