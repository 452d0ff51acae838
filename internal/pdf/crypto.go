package pdf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrEncrypted is returned when a PDF cannot be read without a password.
var ErrEncrypted = errors.New("pdf is password protected")

// IsEncrypted reports whether the PDF needs a password to be read.
func IsEncrypted(filename string) (bool, error) {
	if _, err := api.PageCountFile(filename); err != nil {
		if IsPasswordError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check PDF encryption status: %w", err)
	}
	return false, nil
}

// Decrypt writes a decrypted copy of filename to a temporary file.
// The returned cleanup func removes it; for unencrypted input the original path is returned.
func Decrypt(filename, password string) (string, func(), error) {
	noop := func() {}
	encrypted, err := IsEncrypted(filename)
	if err != nil {
		return "", noop, err
	}
	if !encrypted {
		return filename, noop, nil
	}
	if password == "" {
		return "", noop, ErrEncrypted
	}

	tmp, err := os.CreateTemp("", "formocr-decrypted-*.pdf")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temporary file: %w", err)
	}
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if err := api.DecryptFile(filename, tmp.Name(), configuration(password)); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("%w: %v", ErrEncrypted, err)
	}
	return tmp.Name(), cleanup, nil
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEncrypted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"password", "encrypted", "decrypt", "authentication"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
