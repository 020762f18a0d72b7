package discovery

import (
	"encoding/json"
	"net/http"
)

// metadataCacheControl lets intermediaries cache the well-known documents.
const metadataCacheControl = "public, max-age=3600"

// OAuthServerMetadataHandler serves the RFC 8414 document at
// /.well-known/oauth-authorization-server.
func OAuthServerMetadataHandler(issuer string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		metadata, err := BuildOAuthServerMetadata(issuer)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeMetadata(rw, metadata)
	}
}

// ProtectedResourceMetadataHandler serves the RFC 9728 document at
// /.well-known/oauth-protected-resource.
func ProtectedResourceMetadataHandler(config ResourceConfig) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		metadata, err := BuildProtectedResourceMetadata(config)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeMetadata(rw, metadata)
	}
}

func writeMetadata(rw http.ResponseWriter, document interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Cache-Control", metadataCacheControl)
	_ = json.NewEncoder(rw).Encode(document)
}

// Create401Response writes an unauthorized response carrying a Bearer
// challenge that points clients at the resource metadata document.
func Create401Response(rw http.ResponseWriter, resourceMetadataURL, errorCode, description string) {
	if errorCode == "" {
		errorCode = "unauthorized"
	}
	if description == "" {
		description = "Authorization required"
	}
	rw.Header().Set("WWW-Authenticate", BuildWWWAuthenticate(ChallengeParams{
		ResourceMetadataURL: resourceMetadataURL,
		Error:               errorCode,
		ErrorDescription:    description,
	}))
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(rw).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
