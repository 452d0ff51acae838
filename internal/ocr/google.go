package ocr

import (
	"os"

	"google.golang.org/api/option"
)

// googleClientOptions resolves credentials in order: inline GOOGLE_CREDENTIALS JSON,
// an explicit credentials file, GOOGLE_APPLICATION_CREDENTIALS. With none set the
// client falls back to application default credentials.
func googleClientOptions(credentialsFile string) []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}
