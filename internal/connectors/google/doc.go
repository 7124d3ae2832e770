// Package google provides shared infrastructure for Google API extractors.
//
// This package contains common utilities used by the drive extractor,
// including:
//   - Service factories that authenticate with a caller-supplied access token
//   - Error classification for Google API responses (401, 403, 404, 429, 5xx)
//   - Rate limiting to respect Google API quotas
//
// # Usage
//
//	svc, err := google.NewDriveService(ctx, accessToken, google.ServiceConfig{})
//
// # OAuth2 Scopes
//
// The drive extractor only needs https://www.googleapis.com/auth/drive.readonly.
// Tokens are obtained and refreshed by the session manager, never here.
package google
